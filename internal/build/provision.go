package build

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/binforge/binforge/internal/runtime"
)

// Shell used for install, prepare, and compile commands.
const buildShell = "/bin/sh"

// Ordinals of the provision steps, in execution order.
const (
	stepPackages = iota
	stepManifests
	stepSources
	stepCompile
)

// Runs the provision phase and returns the compiled artifact.
//
// When the compile step itself is cached, no builder container is started
// at all. Otherwise the builder starts from the deepest matching checkpoint
// and re-executes only the steps after it, checkpointing each completed
// step on the way.
func (p *pipeline) provision(ctx context.Context) (*artifact, error) {
	if path, ok := p.lookup(p.keys.compile); ok {
		slog.Info("artifact served from cache", "bin", p.resolved.BinName)
		return &artifact{cached: path}, nil
	}

	ref, first := p.provisionStart()

	ctr, err := p.startContainer(ctx, ref, "builder")
	if err != nil {
		return nil, errors.Wrap(ErrProvision, err.Error())
	}

	if first <= stepPackages {
		if err := p.installPackages(ctx, ctr, p.def.Builder.Install, p.def.Builder.Packages); err != nil {
			return nil, err
		}
		p.checkpoint(ctx, ctr, p.keys.packages, "packages")
	}

	if first <= stepManifests {
		if err := p.stageManifests(ctx, ctr); err != nil {
			return nil, err
		}
		p.checkpoint(ctx, ctr, p.keys.manifests, "manifests")
	}

	if first <= stepSources {
		if err := p.stageSources(ctx, ctr); err != nil {
			return nil, err
		}
		p.checkpoint(ctx, ctr, p.keys.sources, "sources")
	}

	if err := p.compile(ctx, ctr); err != nil {
		return nil, err
	}

	return &artifact{builder: ctr, path: p.resolved.Artifact}, nil
}

// Picks the image the builder container starts from and the first step to
// execute.
//
// Checkpoints are probed deepest-first. A hit on the sources checkpoint
// means only compilation runs; a total miss starts from the builder base
// image with every step ahead.
func (p *pipeline) provisionStart() (string, int) {
	probes := []struct {
		key  digest.Digest
		step string
		next int
	}{
		{p.keys.sources, "sources", stepCompile},
		{p.keys.manifests, "manifests", stepSources},
		{p.keys.packages, "packages", stepManifests},
	}

	for _, probe := range probes {
		if path, ok := p.lookup(probe.key); ok {
			slog.Info("resuming from checkpoint", "step", probe.step)
			return path, probe.next
		}
	}

	return p.def.Builder.Image, stepPackages
}

// Installs system packages inside a stage container.
//
// The install command prefix and the package list are joined into a single
// shell command. An empty package list skips the exec entirely; the step is
// still checkpointed so later runs skip the probe. Installation failure is
// fatal with the package manager's stderr preserved verbatim.
func (p *pipeline) installPackages(ctx context.Context, ctr *runtime.Container, install string, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	command := install + " " + strings.Join(packages, " ")
	slog.Info("installing packages", "packages", packages)

	result, err := ctr.Exec(ctx, buildShell, command, nil, "")
	if err != nil {
		return errors.Wrap(ErrProvision, err.Error())
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(ErrProvision, "package install exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

// Stages the manifest files into the builder workdir and runs the optional
// prepare command.
//
// Manifests are staged before any source directory so that a source-only
// change cannot invalidate the dependency-installation checkpoint.
func (p *pipeline) stageManifests(ctx context.Context, ctr *runtime.Container) error {
	workdir := p.def.Builder.Workdir

	if err := ctr.MkdirAll(ctx, workdir); err != nil {
		return errors.Wrap(ErrProvision, err.Error())
	}

	slog.Info("staging manifests", "paths", p.def.Builder.Manifests)
	for _, rel := range p.def.Builder.Manifests {
		if err := p.stagePath(ctx, ctr, rel); err != nil {
			return err
		}
	}

	if p.def.Builder.Prepare == "" {
		return nil
	}

	slog.Info("preparing dependencies", "command", p.def.Builder.Prepare)
	result, err := ctr.Exec(ctx, buildShell, p.def.Builder.Prepare, nil, workdir)
	if err != nil {
		return errors.Wrap(ErrProvision, err.Error())
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(ErrProvision, "prepare exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

// Stages the source files and directories into the builder workdir.
func (p *pipeline) stageSources(ctx context.Context, ctr *runtime.Container) error {
	slog.Info("staging sources", "paths", p.def.Builder.Sources)

	for _, rel := range p.def.Builder.Sources {
		if err := p.stagePath(ctx, ctr, rel); err != nil {
			return err
		}
	}
	return nil
}

// Runs the compile command and verifies the artifact exists afterwards.
//
// A compiler failure aborts the pipeline with the compiler's stderr
// preserved verbatim. A compile that exits zero without producing the
// declared artifact (e.g. an artifact path that does not match the
// compiler's output convention) is an artifact-resolution error.
func (p *pipeline) compile(ctx context.Context, ctr *runtime.Container) error {
	slog.Info("compiling", "bin", p.resolved.BinName, "command", p.resolved.Command)

	result, err := ctr.Exec(ctx, buildShell, p.resolved.Command, nil, p.def.Builder.Workdir)
	if err != nil {
		return errors.Wrap(ErrCompile, err.Error())
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(ErrCompile, "exited %d: %s", result.ExitCode, result.Stderr)
	}

	exists, err := ctr.PathExists(ctx, p.resolved.Artifact)
	if err != nil {
		return errors.Wrap(ErrCompile, err.Error())
	}
	if !exists {
		return errors.Wrapf(ErrArtifactMissing, "%s", p.resolved.Artifact)
	}

	p.cacheArtifact(ctx, ctr)
	return nil
}

// Stores the compiled artifact in the layer cache under the compile key.
//
// Advisory, like checkpoints: a failure is logged and the build continues.
func (p *pipeline) cacheArtifact(ctx context.Context, ctr *runtime.Container) {
	entry, err := p.store.Create()
	if err != nil {
		slog.Warn("artifact caching skipped", "error", err)
		return
	}

	if err := ctr.CopyFrom(ctx, entry, p.resolved.Artifact); err != nil {
		entry.Discard()
		slog.Warn("artifact caching skipped", "error", err)
		return
	}

	if err := entry.Commit(p.keys.compile); err != nil {
		slog.Warn("artifact caching skipped", "error", err)
		return
	}

	slog.Debug("artifact cached", "key", p.keys.compile.String())
}
