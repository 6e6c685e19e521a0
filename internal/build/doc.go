// Package build orchestrates the two-stage build-and-package pipeline.
//
// A pipeline compiles one binary, selected by name, inside a builder
// container and packages it into a minimal runtime image. The provision
// phase installs build packages, stages manifest files before source
// directories, and runs the compile command. The package phase installs
// the runtime packages, transfers the compiled artifact to its canonical
// path, and exports the result as an OCI archive whose entrypoint executes
// the binary directly.
//
// Every provision step has a content-addressed cache key derived from the
// keys of the steps before it and the content of its own inputs. Completed
// steps are checkpointed into the layer cache, and later runs resume from
// the deepest checkpoint whose key still matches. A change to source
// directories therefore re-runs only the source staging and compile steps,
// and a change to the binary name alone re-runs only the compile step.
// The cache is advisory: any cache failure falls back to re-execution.
//
// Container operations are delegated to the runtime package. Both stage
// containers are destroyed when the pipeline finishes, success or failure.
//
// Example usage:
//
//	result, err := build.Run(ctx, rt, build.Options{
//	    Pipeline: pipeline,
//	    BinName:  "server",
//	    Context:  ".",
//	    Output:   "dist",
//	    Cache:    store,
//	})
//	if err != nil {
//	    return err
//	}
package build
