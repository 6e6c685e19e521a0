package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/binforge/binforge/internal/cache"
	"github.com/binforge/binforge/internal/manifest"
	"github.com/binforge/binforge/internal/paths"
	"github.com/binforge/binforge/internal/runtime"
)

// Filename of the OCI archive produced by a pipeline run.
const exportFilename = "image.tar"

// Controls pipeline execution.
type Options struct {
	Pipeline *manifest.Pipeline // Loaded pipeline definition.
	BinName  string             // Name of the binary to build, required.
	Context  string             // Source tree root, for resolving staged paths.
	Output   string             // Directory receiving the exported image.
	Platform string             // Target platform (e.g., "linux/amd64"). Defaults to host.
	Cache    *cache.Store       // Layer cache. Required; NoCache disables lookups.
	NoCache  bool               // Skip cache lookups; checkpoints are still written.
}

// Returned after a successful pipeline run.
type Result struct {
	ImagePath string // Path of the exported OCI archive.
	BinName   string // The binary the image entrypoint executes.
}

// Executes the pipeline end-to-end against the container runtime.
//
// The binary name is validated and resolved against the definition before
// any container work starts. The provision phase produces the compiled
// artifact, the package phase assembles and exports the runtime image.
// Both stage containers are destroyed when the run completes.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	resolved, err := opts.Pipeline.Resolve(opts.BinName)
	if err != nil {
		return nil, err
	}

	platform := opts.Platform
	if platform == "" {
		platform = runtime.DefaultPlatform()
	}

	keys, err := deriveKeys(opts.Pipeline, resolved, opts.Context, platform)
	if err != nil {
		return nil, err
	}

	slog.Info("executing pipeline",
		"bin", opts.BinName,
		"output", opts.Output,
		"platform", platform,
	)

	if err := os.MkdirAll(opts.Output, paths.DefaultDirMode); err != nil {
		return nil, errors.Wrapf(ErrFileSystemOperation, "%s", err)
	}

	p := &pipeline{
		rt:       rt,
		def:      opts.Pipeline,
		resolved: resolved,
		context:  opts.Context,
		platform: platform,
		store:    opts.Cache,
		noCache:  opts.NoCache,
		keys:     keys,
	}
	defer p.destroyContainers(ctx)

	artifact, err := p.provision(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "provision")
	}

	imagePath := filepath.Join(opts.Output, exportFilename)
	if err := p.pack(ctx, artifact, imagePath); err != nil {
		return nil, errors.Wrap(err, "package")
	}

	return &Result{ImagePath: imagePath, BinName: opts.BinName}, nil
}

// Holds shared state for one pipeline run.
type pipeline struct {
	rt       *runtime.Runtime     // Container runtime for image and container operations.
	def      *manifest.Pipeline   // Pipeline definition.
	resolved *manifest.Resolved   // Binary-dependent values for this run.
	context  string               // Source tree root.
	platform string               // Target OCI platform.
	store    *cache.Store         // Layer cache.
	noCache  bool                 // Whether cache lookups are disabled for this run.
	keys     *stepKeys            // Cache keys for every cacheable step.
	started  []*runtime.Container // Stage containers, destroyed after the run completes.
}

// The compiled artifact handed from the provision phase to the package
// phase. Exactly one of builder or cached is set: the artifact lives either
// inside the builder container or as a cached tar archive on disk.
type artifact struct {
	builder *runtime.Container // Builder container holding the artifact, or nil.
	path    string             // Path of the artifact inside the builder container.
	cached  string             // Path of the cached artifact archive on disk, or empty.
}

// Destroys all stage containers started during the run.
func (p *pipeline) destroyContainers(ctx context.Context) {
	for _, ctr := range p.started {
		ctr.Destroy(ctx)
	}
}

// Starts a stage container and registers it for destruction.
func (p *pipeline) startContainer(ctx context.Context, ref, stage string) (*runtime.Container, error) {
	id := containerID(p.resolved.BinName, p.platform, stage)

	ctr, err := p.rt.StartContainer(ctx, ref, id, p.platform)
	if err != nil {
		return nil, err
	}

	p.started = append(p.started, ctr)
	return ctr, nil
}

// Looks up a checkpoint in the layer cache.
//
// Always misses when cache lookups are disabled for the run.
func (p *pipeline) lookup(key digest.Digest) (string, bool) {
	if p.noCache {
		return "", false
	}
	return p.store.Lookup(key)
}

// Writes a checkpoint of the container's current filesystem state to the
// layer cache.
//
// The cache is advisory. A failed checkpoint is logged and otherwise
// ignored; the build continues and a later run simply re-executes the step.
func (p *pipeline) checkpoint(ctx context.Context, ctr *runtime.Container, key digest.Digest, step string) {
	entry, err := p.store.Create()
	if err != nil {
		slog.Warn("checkpoint skipped", "step", step, "error", err)
		return
	}

	if err := ctr.Export(ctx, entry.Path(), nil); err != nil {
		entry.Discard()
		slog.Warn("checkpoint skipped", "step", step, "error", err)
		return
	}

	if err := entry.Commit(key); err != nil {
		slog.Warn("checkpoint skipped", "step", step, "error", err)
		return
	}

	slog.Debug("checkpoint written", "step", step, "key", key.String())
}

// Returns a unique container ID for a stage, scoped to the binary name and
// platform so repeated runs replace their own containers.
func containerID(binName, platform, stage string) string {
	return "binforge-" + binName + "-" + platformSlug(platform) + "-" + stage
}

// Converts a platform string to an ID-safe slug.
//
// Replaces slashes with dashes (e.g., "linux/amd64" becomes "linux-amd64").
func platformSlug(platform string) string {
	return strings.ReplaceAll(platform, "/", "-")
}
