// Package runtime manages containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon and provides image
// acquisition and container creation. Base images are pulled from a
// registry, or imported when the reference names an OCI archive on disk
// (which is how cached stage checkpoints re-enter the pipeline). Images
// are unpacked for the target platform and used to create containers
// with overlayfs snapshots.
//
// Each [Container] wraps a running containerd task. Commands can be
// executed inside the container, files can be copied in and out as tar
// streams, and the container's filesystem state can be committed and
// exported as a new OCI archive. When the container is no longer needed
// it should be destroyed to release its snapshot and task resources.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "binforge")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "docker.io/library/debian:bookworm-slim", "pkg-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "/bin/sh", "echo hello", nil, "")
//	if err != nil {
//	    return err
//	}
//
//	if err := ctr.Export(ctx, "dist/image.tar", []string{"/usr/local/bin/app"}); err != nil {
//	    return err
//	}
package runtime
