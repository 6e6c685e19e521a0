package manifest

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
)

// Default command prefix for installing system packages in either stage.
const defaultInstall = "apt-get update && apt-get install -y"

// Default working directory inside the builder container.
const defaultWorkdir = "/build"

// A loaded pipeline definition.
//
// The Command and Artifact attributes of the builder block stay unevaluated
// until [Pipeline.Resolve] is called with the binary name.
type Pipeline struct {
	Builder Builder
	Runtime Runtime
}

// Describes the compilation environment.
type Builder struct {
	Image     string         // Base image reference: registry name or OCI archive path.
	Packages  []string       // Fixed build-time system package list.
	Install   string         // Package install command prefix.
	Workdir   string         // Directory the source tree is staged into.
	Manifests []string       // Dependency manifest files, staged before sources.
	Sources   []string       // Source files and directories, staged after manifests.
	Prepare   string         // Optional command run after manifests are staged (e.g. "cargo fetch").
	Command   hcl.Expression // Compile command, may reference ${bin_name}.
	Artifact  hcl.Expression // Path of the compiled binary, may reference ${bin_name}.
}

// Describes the runtime environment the artifact is packaged into.
type Runtime struct {
	Image    string   // Minimal base image reference.
	Packages []string // Fixed runtime system package list (e.g. ca-certificates).
	Install  string   // Package install command prefix.
	Path     string   // Canonical absolute path of the binary in the final image.
}

// HCL decoding schema for the definition file.
type hclFile struct {
	Pipeline *hclPipeline `hcl:"pipeline,block"`
}

type hclPipeline struct {
	Builder *hclBuilder `hcl:"builder,block"`
	Runtime *hclRuntime `hcl:"runtime,block"`
}

type hclBuilder struct {
	Image     string         `hcl:"image"`
	Packages  []string       `hcl:"packages,optional"`
	Install   string         `hcl:"install,optional"`
	Workdir   string         `hcl:"workdir,optional"`
	Manifests []string       `hcl:"manifests,optional"`
	Sources   []string       `hcl:"sources"`
	Prepare   string         `hcl:"prepare,optional"`
	Command   hcl.Expression `hcl:"command"`
	Artifact  hcl.Expression `hcl:"artifact"`
}

type hclRuntime struct {
	Image    string   `hcl:"image"`
	Packages []string `hcl:"packages,optional"`
	Install  string   `hcl:"install,optional"`
	Path     string   `hcl:"path"`
}

// Loads a pipeline definition from an HCL file.
//
// The file is parsed, decoded, defaulted, and validated. Expressions that
// may reference ${bin_name} are left unevaluated.
func Load(path string) (*Pipeline, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Wrap(ErrDefinition, diags.Error())
	}

	return decode(file.Body)
}

// Loads a pipeline definition from in-memory HCL source.
//
// The filename is used only for diagnostics.
func Parse(src []byte, filename string) (*Pipeline, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(ErrDefinition, diags.Error())
	}

	return decode(file.Body)
}

// Decodes an HCL body into a validated [Pipeline].
func decode(body hcl.Body) (*Pipeline, error) {
	var raw hclFile
	if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
		return nil, errors.Wrap(ErrDefinition, diags.Error())
	}

	if raw.Pipeline == nil {
		return nil, errors.Wrap(ErrDefinition, "missing pipeline block")
	}
	if raw.Pipeline.Builder == nil {
		return nil, errors.Wrap(ErrDefinition, "missing builder block")
	}
	if raw.Pipeline.Runtime == nil {
		return nil, errors.Wrap(ErrDefinition, "missing runtime block")
	}

	p := &Pipeline{
		Builder: Builder{
			Image:     raw.Pipeline.Builder.Image,
			Packages:  raw.Pipeline.Builder.Packages,
			Install:   raw.Pipeline.Builder.Install,
			Workdir:   raw.Pipeline.Builder.Workdir,
			Manifests: raw.Pipeline.Builder.Manifests,
			Sources:   raw.Pipeline.Builder.Sources,
			Prepare:   raw.Pipeline.Builder.Prepare,
			Command:   raw.Pipeline.Builder.Command,
			Artifact:  raw.Pipeline.Builder.Artifact,
		},
		Runtime: Runtime{
			Image:    raw.Pipeline.Runtime.Image,
			Packages: raw.Pipeline.Runtime.Packages,
			Install:  raw.Pipeline.Runtime.Install,
			Path:     raw.Pipeline.Runtime.Path,
		},
	}

	p.applyDefaults()

	if err := p.validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Fills in defaults for optional attributes.
func (p *Pipeline) applyDefaults() {
	if p.Builder.Install == "" {
		p.Builder.Install = defaultInstall
	}
	if p.Builder.Workdir == "" {
		p.Builder.Workdir = defaultWorkdir
	}
	if p.Runtime.Install == "" {
		p.Runtime.Install = defaultInstall
	}
}
