package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/binforge/binforge/internal"
)

const (

	// Default containerd socket address.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultContainerdNamespace = "binforge"
)

// Represents the root command for the binforge CLI.
var RootCmd struct {
	Quiet     bool       `short:"q" help:"Suppress informational output."`
	Verbose   bool       `short:"v" help:"Enable verbose output."`
	Debug     bool       `short:"d" help:"Enable debug output."`
	Address   string     `help:"Override the containerd socket address." placeholder:"PATH"`
	Namespace string     `help:"Override the containerd namespace." placeholder:"NAME"`
	Build     BuildCmd   `cmd:"" help:"Compile one binary and package it into a runtime image."`
	Cache     CacheCmd   `cmd:"" help:"Manage the layer cache."`
	Version   VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds one binary from a source tree and packages it into a minimal runtime image."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})

	slog.SetDefault(slog.New(handler))
}

// Returns the containerd socket address, preferring the CLI override.
func containerdAddress() string {
	if RootCmd.Address != "" {
		return RootCmd.Address
	}
	return DefaultContainerdAddress
}

// Returns the containerd namespace, preferring the CLI override.
func containerdNamespace() string {
	if RootCmd.Namespace != "" {
		return RootCmd.Namespace
	}
	return DefaultContainerdNamespace
}
