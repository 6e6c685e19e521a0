// Package manifest loads and validates pipeline definition files.
//
// A definition is a single HCL file with one pipeline block containing a
// builder block and a runtime block. The builder block describes the
// compilation environment: base image, system packages, manifest files and
// source directories to stage, and the compile command. The runtime block
// describes the minimal image the compiled binary is packaged into.
//
// The compile command and artifact path may reference the selected binary
// through the ${bin_name} interpolation. These attributes are kept as
// unevaluated HCL expressions at load time and resolved once the binary
// name is known.
//
// Example usage:
//
//	p, err := manifest.Load("forge.hcl")
//	if err != nil {
//	    return err
//	}
//
//	resolved, err := p.Resolve("server")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resolved.Command)  // cargo build --release --bin server
package manifest
