package manifest

import (
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Variable name the compile command and artifact path may reference.
const binNameVariable = "bin_name"

// A pipeline with the binary-dependent expressions evaluated.
type Resolved struct {
	BinName  string // The selected binary name.
	Command  string // Compile command with ${bin_name} substituted.
	Artifact string // Absolute path of the compiled binary inside the builder.
}

// Evaluates the builder's command and artifact expressions for a binary name.
//
// The name is exposed to the expressions as the bin_name variable. It must
// be non-empty; this is the first check the pipeline performs, before any
// container work starts.
func (p *Pipeline) Resolve(binName string) (*Resolved, error) {
	if strings.TrimSpace(binName) == "" {
		return nil, errors.Wrap(ErrDefinition, "binary name must not be empty")
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			binNameVariable: cty.StringVal(binName),
		},
	}

	command, err := evalString(p.Builder.Command, evalCtx)
	if err != nil {
		return nil, errors.Wrapf(ErrResolve, "command: %s", err)
	}
	if strings.TrimSpace(command) == "" {
		return nil, errors.Wrap(ErrDefinition, "builder command must not be empty")
	}

	artifact, err := evalString(p.Builder.Artifact, evalCtx)
	if err != nil {
		return nil, errors.Wrapf(ErrResolve, "artifact: %s", err)
	}
	if !path.IsAbs(artifact) {
		artifact = path.Join(p.Builder.Workdir, artifact)
	}

	return &Resolved{
		BinName:  binName,
		Command:  command,
		Artifact: artifact,
	}, nil
}

// Evaluates an HCL expression to a string in the given context.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	if expr == nil {
		return "", errors.New("attribute is not set")
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", errors.New(diags.Error())
	}

	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", errors.New("attribute is null")
	}

	return val.AsString(), nil
}
