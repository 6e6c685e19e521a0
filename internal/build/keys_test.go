package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/binforge/binforge/internal/manifest"
)

const testDefinition = `
pipeline {
  builder {
    image     = "docker.io/library/rust:1.79-bookworm"
    packages  = ["pkg-config"]
    manifests = ["Cargo.toml", "Cargo.lock"]
    sources   = ["src"]
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

func testPipeline(t *testing.T) *manifest.Pipeline {
	t.Helper()

	p, err := manifest.Parse([]byte(testDefinition), "forge.hcl")
	if err != nil {
		t.Fatalf("parsing definition: %v", err)
	}
	return p
}

func testContext(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeTestFile(t, dir, "Cargo.toml", "[package]\nname = \"app\"\n")
	writeTestFile(t, dir, "Cargo.lock", "# lock\n")
	writeTestFile(t, dir, "src/main.rs", "fn main() {}\n")
	writeTestFile(t, dir, "src/lib.rs", "pub fn run() {}\n")

	return dir
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()

	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func deriveTestKeys(t *testing.T, p *manifest.Pipeline, dir, bin string) *stepKeys {
	t.Helper()

	resolved, err := p.Resolve(bin)
	if err != nil {
		t.Fatalf("resolving %q: %v", bin, err)
	}

	keys, err := deriveKeys(p, resolved, dir, "linux/amd64")
	if err != nil {
		t.Fatalf("deriving keys: %v", err)
	}
	return keys
}

func TestDeriveKeysDeterministic(t *testing.T) {
	p := testPipeline(t)
	dir := testContext(t)

	a := deriveTestKeys(t, p, dir, "server")
	b := deriveTestKeys(t, p, dir, "server")

	if a.packages != b.packages || a.manifests != b.manifests ||
		a.sources != b.sources || a.compile != b.compile ||
		a.runtimePackages != b.runtimePackages {
		t.Fatalf("keys differ across identical runs:\n%+v\n%+v", a, b)
	}
}

func TestDeriveKeysSourceChange(t *testing.T) {
	p := testPipeline(t)
	dir := testContext(t)

	before := deriveTestKeys(t, p, dir, "server")
	writeTestFile(t, dir, "src/main.rs", "fn main() { println!(\"changed\"); }\n")
	after := deriveTestKeys(t, p, dir, "server")

	if before.packages != after.packages {
		t.Error("packages key changed after source edit")
	}
	if before.manifests != after.manifests {
		t.Error("manifests key changed after source edit")
	}
	if before.sources == after.sources {
		t.Error("sources key unchanged after source edit")
	}
	if before.compile == after.compile {
		t.Error("compile key unchanged after source edit")
	}
}

func TestDeriveKeysManifestChange(t *testing.T) {
	p := testPipeline(t)
	dir := testContext(t)

	before := deriveTestKeys(t, p, dir, "server")
	writeTestFile(t, dir, "Cargo.toml", "[package]\nname = \"app\"\nversion = \"2.0\"\n")
	after := deriveTestKeys(t, p, dir, "server")

	if before.packages != after.packages {
		t.Error("packages key changed after manifest edit")
	}
	if before.manifests == after.manifests {
		t.Error("manifests key unchanged after manifest edit")
	}
	if before.sources == after.sources {
		t.Error("sources key unchanged after manifest edit")
	}
	if before.compile == after.compile {
		t.Error("compile key unchanged after manifest edit")
	}
}

func TestDeriveKeysBinNameChange(t *testing.T) {
	p := testPipeline(t)
	dir := testContext(t)

	server := deriveTestKeys(t, p, dir, "server")
	worker := deriveTestKeys(t, p, dir, "worker")

	if server.packages != worker.packages ||
		server.manifests != worker.manifests ||
		server.sources != worker.sources {
		t.Error("early step keys changed with the binary name")
	}
	if server.compile == worker.compile {
		t.Error("compile key identical for different binaries")
	}
}

func TestDeriveKeysMissingPath(t *testing.T) {
	p := testPipeline(t)
	dir := t.TempDir() // no staged files at all

	resolved, err := p.Resolve("server")
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}

	if _, err := deriveKeys(p, resolved, dir, "linux/amd64"); err == nil {
		t.Fatal("expected error for missing staged paths, got nil")
	}
}

func TestStepKey(t *testing.T) {
	if stepKey("compile", "a", "b") != stepKey("compile", "a", "b") {
		t.Fatal("stepKey is not deterministic")
	}
	if stepKey("compile", "a") == stepKey("packages", "a") {
		t.Fatal("different step names produced the same key")
	}

	// Length prefixing keeps adjacent parts from bleeding into each other.
	if stepKey("s", "ab", "c") == stepKey("s", "a", "bc") {
		t.Fatal("shifting a part boundary did not change the key")
	}
}

func TestHashPathsOrderIndependent(t *testing.T) {
	dir := testContext(t)

	a, err := hashPaths(dir, []string{"Cargo.toml", "Cargo.lock"})
	if err != nil {
		t.Fatalf("hashPaths failed: %v", err)
	}
	b, err := hashPaths(dir, []string{"Cargo.lock", "Cargo.toml"})
	if err != nil {
		t.Fatalf("hashPaths failed: %v", err)
	}

	if a != b {
		t.Fatalf("listing order changed the digest: %s vs %s", a, b)
	}
}
