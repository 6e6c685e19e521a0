package cli

import (
	"context"
	"log/slog"

	"github.com/binforge/binforge/internal/build"
	"github.com/binforge/binforge/internal/cache"
	"github.com/binforge/binforge/internal/manifest"
	"github.com/binforge/binforge/internal/paths"
	"github.com/binforge/binforge/internal/runtime"
)

// Represents the 'binforge build' command.
type BuildCmd struct {
	Bin      string `help:"Name of the binary to build." required:"" placeholder:"NAME"`
	File     string `help:"Pipeline definition file." default:"forge.hcl" type:"path"`
	Context  string `help:"Build context directory." default:"." type:"path"`
	Output   string `help:"Output directory for the exported image." default:"dist" type:"path"`
	Platform string `help:"Target platform (e.g. linux/amd64). Defaults to the host." placeholder:"OS/ARCH"`
	NoCache  bool   `help:"Ignore the layer cache for this run."`
}

// Executes the build command.
//
// Loads the pipeline definition, opens the layer cache, connects to
// containerd, and runs the two-stage pipeline for the selected binary.
func (c *BuildCmd) Run(ctx context.Context) error {
	pipeline, err := manifest.Load(c.File)
	if err != nil {
		return err
	}

	store, err := cache.Open(paths.Layers(), paths.Scratch())
	if err != nil {
		return err
	}

	rt, err := runtime.New(containerdAddress(), containerdNamespace())
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := build.Run(ctx, rt, build.Options{
		Pipeline: pipeline,
		BinName:  c.Bin,
		Context:  c.Context,
		Output:   c.Output,
		Platform: c.Platform,
		Cache:    store,
		NoCache:  c.NoCache,
	})
	if err != nil {
		return err
	}

	slog.Info("pipeline complete", "bin", result.BinName, "image", result.ImagePath)
	return nil
}
