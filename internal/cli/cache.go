package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/binforge/binforge/internal/cache"
	"github.com/binforge/binforge/internal/paths"
)

// Represents the 'binforge cache' command group.
type CacheCmd struct {
	Path  CachePathCmd  `cmd:"" help:"Print the layer cache directory."`
	Prune CachePruneCmd `cmd:"" help:"Remove all cached checkpoints and artifacts."`
}

// Represents the 'binforge cache path' command.
type CachePathCmd struct{}

// Executes the cache path command.
func (c *CachePathCmd) Run(ctx context.Context) error {
	fmt.Println(paths.Layers())
	return nil
}

// Represents the 'binforge cache prune' command.
type CachePruneCmd struct{}

// Executes the cache prune command.
//
// The cache never evicts on its own, so pruning is the only way to reclaim
// the space it occupies.
func (c *CachePruneCmd) Run(ctx context.Context) error {
	store, err := cache.Open(paths.Layers(), paths.Scratch())
	if err != nil {
		return err
	}

	if err := store.Prune(); err != nil {
		return err
	}

	slog.Info("layer cache pruned", "dir", store.Dir())
	return nil
}
