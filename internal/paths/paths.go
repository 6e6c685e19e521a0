package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "binforge"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755
)

// Path to the base cache directory.
//
//	Linux:   $XDG_CACHE_HOME/binforge or ~/.cache/binforge
//	macOS:   ~/Library/Caches/binforge
func Cache() string {
	return filepath.Join(xdg.CacheHome, toolName)
}

// Path to the layer cache directory holding step checkpoints and artifacts.
//
//	Linux:   $XDG_CACHE_HOME/binforge/layers
//	macOS:   ~/Library/Caches/binforge/layers
func Layers() string {
	return filepath.Join(Cache(), "layers")
}

// Path to the scratch directory for in-progress cache writes.
//
// Kept on the same filesystem as the layer cache so entries can be
// published with an atomic rename.
func Scratch() string {
	return filepath.Join(Cache(), "scratch")
}
