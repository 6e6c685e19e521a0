package manifest

import (
	"errors"
	"strings"
	"testing"
)

const validDefinition = `
pipeline {
  builder {
    image     = "docker.io/library/rust:1.79-bookworm"
    packages  = ["pkg-config", "libssl-dev"]
    manifests = ["Cargo.toml", "Cargo.lock"]
    sources   = ["src"]
    prepare   = "cargo fetch"
    command   = "cargo build --release --bin ${bin_name}"
    artifact  = "/build/target/release/${bin_name}"
  }
  runtime {
    image    = "docker.io/library/debian:bookworm-slim"
    packages = ["ca-certificates"]
    path     = "/usr/local/bin/app"
  }
}
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(validDefinition), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Builder.Image != "docker.io/library/rust:1.79-bookworm" {
		t.Errorf("builder image = %q", p.Builder.Image)
	}
	if len(p.Builder.Packages) != 2 {
		t.Errorf("builder packages = %v, want 2 entries", p.Builder.Packages)
	}
	if got := p.Builder.Manifests; len(got) != 2 || got[0] != "Cargo.toml" {
		t.Errorf("manifests = %v", got)
	}
	if p.Runtime.Path != "/usr/local/bin/app" {
		t.Errorf("runtime path = %q", p.Runtime.Path)
	}
}

func TestParseDefaults(t *testing.T) {
	p, err := Parse([]byte(validDefinition), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Builder.Workdir != defaultWorkdir {
		t.Errorf("workdir = %q, want %q", p.Builder.Workdir, defaultWorkdir)
	}
	if p.Builder.Install != defaultInstall {
		t.Errorf("builder install = %q, want %q", p.Builder.Install, defaultInstall)
	}
	if p.Runtime.Install != defaultInstall {
		t.Errorf("runtime install = %q, want %q", p.Runtime.Install, defaultInstall)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "missing pipeline block",
			src:  ``,
		},
		{
			name: "missing runtime block",
			src: `
pipeline {
  builder {
    image    = "rust:1.79"
    sources  = ["src"]
    command  = "make"
    artifact = "/build/out"
  }
}
`,
		},
		{
			name: "missing builder block",
			src: `
pipeline {
  runtime {
    image = "debian:bookworm-slim"
    path  = "/usr/local/bin/app"
  }
}
`,
		},
		{
			name: "empty sources",
			src: `
pipeline {
  builder {
    image    = "rust:1.79"
    sources  = []
    command  = "make"
    artifact = "/build/out"
  }
  runtime {
    image = "debian:bookworm-slim"
    path  = "/usr/local/bin/app"
  }
}
`,
		},
		{
			name: "absolute manifest path",
			src: `
pipeline {
  builder {
    image     = "rust:1.79"
    manifests = ["/etc/passwd"]
    sources   = ["src"]
    command   = "make"
    artifact  = "/build/out"
  }
  runtime {
    image = "debian:bookworm-slim"
    path  = "/usr/local/bin/app"
  }
}
`,
		},
		{
			name: "source escapes context",
			src: `
pipeline {
  builder {
    image    = "rust:1.79"
    sources  = ["../secrets"]
    command  = "make"
    artifact = "/build/out"
  }
  runtime {
    image = "debian:bookworm-slim"
    path  = "/usr/local/bin/app"
  }
}
`,
		},
		{
			name: "relative runtime path",
			src: `
pipeline {
  builder {
    image    = "rust:1.79"
    sources  = ["src"]
    command  = "make"
    artifact = "/build/out"
  }
  runtime {
    image = "debian:bookworm-slim"
    path  = "bin/app"
  }
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "forge.hcl")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrDefinition) {
				t.Fatalf("error = %v, want ErrDefinition", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	p, err := Parse([]byte(validDefinition), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := p.Resolve("server")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resolved.BinName != "server" {
		t.Errorf("bin name = %q, want server", resolved.BinName)
	}
	if resolved.Command != "cargo build --release --bin server" {
		t.Errorf("command = %q", resolved.Command)
	}
	if resolved.Artifact != "/build/target/release/server" {
		t.Errorf("artifact = %q", resolved.Artifact)
	}
}

func TestResolveEmptyBinName(t *testing.T) {
	p, err := Parse([]byte(validDefinition), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"", "   "} {
		if _, err := p.Resolve(name); !errors.Is(err, ErrDefinition) {
			t.Errorf("Resolve(%q) error = %v, want ErrDefinition", name, err)
		}
	}
}

func TestResolveRelativeArtifact(t *testing.T) {
	src := strings.Replace(validDefinition,
		`artifact  = "/build/target/release/${bin_name}"`,
		`artifact  = "target/release/${bin_name}"`, 1)

	p, err := Parse([]byte(src), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := p.Resolve("oracle-flow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Relative artifact paths are anchored at the builder workdir.
	if resolved.Artifact != "/build/target/release/oracle-flow" {
		t.Errorf("artifact = %q", resolved.Artifact)
	}
}

func TestResolveUnknownVariable(t *testing.T) {
	src := strings.Replace(validDefinition,
		"${bin_name}", "${target_name}", 1)

	p, err := Parse([]byte(src), "forge.hcl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Resolve("server"); !errors.Is(err, ErrResolve) {
		t.Fatalf("error = %v, want ErrResolve", err)
	}
}
