package manifest

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Checks structural constraints on a decoded pipeline.
//
// Staged paths must stay inside the build context, the runtime path must be
// absolute, and both images must be set. Command and Artifact are checked
// later, at resolve time, because their values depend on the binary name.
func (p *Pipeline) validate() error {
	if strings.TrimSpace(p.Builder.Image) == "" {
		return errors.Wrap(ErrDefinition, "builder image is required")
	}
	if strings.TrimSpace(p.Runtime.Image) == "" {
		return errors.Wrap(ErrDefinition, "runtime image is required")
	}

	if len(p.Builder.Sources) == 0 {
		return errors.Wrap(ErrDefinition, "builder sources must name at least one path")
	}

	for _, m := range p.Builder.Manifests {
		if err := validateStagedPath(m); err != nil {
			return errors.Wrapf(ErrDefinition, "manifest %q: %s", m, err)
		}
	}
	for _, s := range p.Builder.Sources {
		if err := validateStagedPath(s); err != nil {
			return errors.Wrapf(ErrDefinition, "source %q: %s", s, err)
		}
	}

	if !path.IsAbs(p.Builder.Workdir) {
		return errors.Wrapf(ErrDefinition, "builder workdir %q must be absolute", p.Builder.Workdir)
	}
	if !path.IsAbs(p.Runtime.Path) {
		return errors.Wrapf(ErrDefinition, "runtime path %q must be absolute", p.Runtime.Path)
	}
	if strings.HasSuffix(p.Runtime.Path, "/") {
		return errors.Wrapf(ErrDefinition, "runtime path %q must name a file", p.Runtime.Path)
	}

	return nil
}

// Rejects staged paths that would escape the build context.
func validateStagedPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("empty path")
	}
	if path.IsAbs(p) {
		return errors.New("must be relative to the build context")
	}

	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.New("must not escape the build context")
	}

	return nil
}
