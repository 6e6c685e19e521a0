// Package cache implements the content-addressed layer cache.
//
// Entries are files named by the digest of the inputs that produced them:
// stage checkpoints (OCI archives of a partially built container) and
// compiled artifacts (tar archives holding a single binary). A lookup is a
// file existence check; a miss forces the pipeline to re-execute the step,
// never to produce wrong output.
//
// Writes go through a scratch directory on the same filesystem and are
// published with an atomic rename, so an interrupted run cannot leave a
// half-written entry behind. The cache never evicts on its own; Prune
// removes everything.
//
// Example usage:
//
//	store, err := cache.Open(paths.Layers(), paths.Scratch())
//	if err != nil {
//	    return err
//	}
//
//	if path, ok := store.Lookup(key); ok {
//	    return useCheckpoint(path)
//	}
//
//	entry, err := store.Create()
//	if err != nil {
//	    return err
//	}
//	if err := produce(entry); err != nil {
//	    entry.Discard()
//	    return err
//	}
//	return entry.Commit(key)
package cache
