package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/binforge/binforge/internal/manifest"
)

// Cache keys for every cacheable step of one pipeline run.
//
// Each key folds in the key of the step before it, so invalidating an early
// step invalidates everything after it. The compile key additionally folds
// in the resolved command and artifact path, which is what makes a change
// to the binary name re-run compilation without touching the earlier steps.
type stepKeys struct {
	packages        digest.Digest // Build package install, keyed by image and package list.
	manifests       digest.Digest // Manifest staging and prepare command, keyed by manifest content.
	sources         digest.Digest // Source staging, keyed by source tree content.
	compile         digest.Digest // Compilation, keyed by the resolved command and artifact path.
	runtimePackages digest.Digest // Runtime package install, keyed by image and package list.
}

// Derives the cache keys for a run of the pipeline.
//
// Staged file content is read from the build context; a listed path that
// does not exist is an error, surfaced before any container starts.
func deriveKeys(p *manifest.Pipeline, resolved *manifest.Resolved, contextDir, platform string) (*stepKeys, error) {
	keys := &stepKeys{}

	keys.packages = stepKey("packages",
		platform,
		p.Builder.Image,
		p.Builder.Install,
		strings.Join(p.Builder.Packages, ","),
	)

	manifestContent, err := hashPaths(contextDir, p.Builder.Manifests)
	if err != nil {
		return nil, errors.Wrapf(ErrBuild, "hashing manifests: %s", err)
	}
	keys.manifests = stepKey("manifests",
		keys.packages.String(),
		p.Builder.Workdir,
		p.Builder.Prepare,
		manifestContent.String(),
	)

	sourceContent, err := hashPaths(contextDir, p.Builder.Sources)
	if err != nil {
		return nil, errors.Wrapf(ErrBuild, "hashing sources: %s", err)
	}
	keys.sources = stepKey("sources",
		keys.manifests.String(),
		sourceContent.String(),
	)

	keys.compile = stepKey("compile",
		keys.sources.String(),
		resolved.Command,
		resolved.Artifact,
	)

	keys.runtimePackages = stepKey("packages",
		platform,
		p.Runtime.Image,
		p.Runtime.Install,
		strings.Join(p.Runtime.Packages, ","),
	)

	return keys, nil
}

// Computes a step key from the step name and its declared inputs.
//
// Parts are length-prefixed before hashing so that moving a boundary
// between adjacent parts always changes the key.
func stepKey(step string, parts ...string) digest.Digest {
	digester := digest.SHA256.Digester()
	h := digester.Hash()

	fmt.Fprintf(h, "%d:%s", len(step), step)
	for _, part := range parts {
		fmt.Fprintf(h, "%d:%s", len(part), part)
	}

	return digester.Digest()
}

// Hashes the content of a set of files and directories under root.
//
// Paths are visited in sorted order and directories are walked lexically,
// so the digest is stable for identical trees. Each regular file
// contributes its context-relative path, mode, size, and content.
func hashPaths(root string, relPaths []string) (digest.Digest, error) {
	digester := digest.SHA256.Digester()
	h := digester.Hash()

	sorted := make([]string, len(relPaths))
	copy(sorted, relPaths)
	sort.Strings(sorted)

	for _, rel := range sorted {
		full := filepath.Join(root, rel)

		info, err := os.Stat(full)
		if err != nil {
			return "", err
		}

		if info.IsDir() {
			if err := hashDir(h, root, full); err != nil {
				return "", err
			}
			continue
		}

		if err := hashFile(h, full, filepath.ToSlash(rel), info); err != nil {
			return "", err
		}
	}

	return digester.Digest(), nil
}

// Hashes every regular file under dir in lexical walk order.
func hashDir(h io.Writer, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		return hashFile(h, path, filepath.ToSlash(rel), info)
	})
}

// Hashes one regular file: relative path, mode, size, then content.
func hashFile(h io.Writer, path, rel string, info os.FileInfo) error {
	fmt.Fprintf(h, "%d:%s%o:%d:", len(rel), rel, info.Mode().Perm(), info.Size())

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(h, f)
	return err
}
