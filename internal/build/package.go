package build

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/pkg/errors"

	"github.com/binforge/binforge/internal/runtime"
)

// Runs the package phase: assembles the runtime image around the compiled
// artifact and exports it as an OCI archive.
//
// The runtime container starts from the runtime base image, or from the
// cached runtime-packages checkpoint when one matches. The artifact is
// placed at the canonical path under a stable name, so the image entrypoint
// is independent of which binary was built.
func (p *pipeline) pack(ctx context.Context, art *artifact, imagePath string) error {
	ref := p.def.Runtime.Image
	installed := false

	if checkpoint, ok := p.lookup(p.keys.runtimePackages); ok {
		slog.Info("resuming from checkpoint", "step", "runtime packages")
		ref = checkpoint
		installed = true
	}

	ctr, err := p.startContainer(ctx, ref, "runtime")
	if err != nil {
		return errors.Wrap(ErrProvision, err.Error())
	}

	if !installed {
		if err := p.installPackages(ctx, ctr, p.def.Runtime.Install, p.def.Runtime.Packages); err != nil {
			return err
		}
		p.checkpoint(ctx, ctr, p.keys.runtimePackages, "runtime packages")
	}

	if err := p.placeArtifact(ctx, ctr, art); err != nil {
		return err
	}

	if err := ctr.Stop(ctx); err != nil {
		return errors.Wrap(ErrBuild, err.Error())
	}

	if err := ctr.Export(ctx, imagePath, []string{p.def.Runtime.Path}); err != nil {
		return errors.Wrap(ErrBuild, err.Error())
	}

	slog.Info("image exported", "path", imagePath, "entrypoint", p.def.Runtime.Path)
	return nil
}

// Transfers the compiled artifact into the runtime container at the
// canonical path with executable permissions.
//
// A cached artifact is streamed from the layer cache; a fresh one is piped
// container-to-container from the builder without touching the host
// filesystem. Either way the artifact arrives under its build name and is
// renamed to the canonical name the entrypoint expects.
func (p *pipeline) placeArtifact(ctx context.Context, ctr *runtime.Container, art *artifact) error {
	destDir := path.Dir(p.def.Runtime.Path)
	if err := ctr.MkdirAll(ctx, destDir); err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}

	if art.cached != "" {
		if err := p.copyCachedArtifact(ctx, ctr, art.cached, destDir); err != nil {
			return err
		}
	} else {
		if err := p.copyBuilderArtifact(ctx, ctr, art, destDir); err != nil {
			return err
		}
	}

	staged := path.Join(destDir, path.Base(p.resolved.Artifact))
	if staged != p.def.Runtime.Path {
		if err := ctr.Rename(ctx, staged, p.def.Runtime.Path); err != nil {
			return errors.Wrap(ErrCopy, err.Error())
		}
	}

	if err := ctr.Chmod(ctx, p.def.Runtime.Path, "0755"); err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}

	return nil
}

// Streams a cached artifact archive from disk into the runtime container.
func (p *pipeline) copyCachedArtifact(ctx context.Context, ctr *runtime.Container, cachePath, destDir string) error {
	f, err := os.Open(cachePath)
	if err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}
	defer f.Close()

	if err := ctr.CopyTo(ctx, f, destDir); err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}

	return nil
}

// Pipes the artifact from the builder container into the runtime container.
//
// The tar stream flows directly between the two containers. The builder is
// probed first so a missing artifact surfaces as an artifact-resolution
// error rather than a tar failure mid-stream.
func (p *pipeline) copyBuilderArtifact(ctx context.Context, ctr *runtime.Container, art *artifact, destDir string) error {
	exists, err := art.builder.PathExists(ctx, art.path)
	if err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}
	if !exists {
		return errors.Wrapf(ErrArtifactMissing, "%s", art.path)
	}

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- art.builder.CopyFrom(ctx, pw, art.path)
		pw.Close()
	}()

	if err := ctr.CopyTo(ctx, pr, destDir); err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}

	if err := <-errc; err != nil {
		return errors.Wrap(ErrCopy, err.Error())
	}

	return nil
}
