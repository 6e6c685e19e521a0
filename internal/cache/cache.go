package cache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/binforge/binforge/internal/paths"
)

// Filename extension for cache entries.
const entryExt = ".tar"

// A content-addressed store of cache entries on the local filesystem.
type Store struct {
	dir     string // Directory holding committed entries.
	scratch string // Directory for in-progress writes, same filesystem as dir.
}

// Opens the store rooted at dir, creating it if necessary.
//
// The scratch directory receives in-progress writes before they are renamed
// into place; it must live on the same filesystem as dir.
func Open(dir, scratch string) (*Store, error) {
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return nil, errors.Wrap(err, "creating cache directory")
	}
	if err := os.MkdirAll(scratch, paths.DefaultDirMode); err != nil {
		return nil, errors.Wrap(err, "creating cache scratch directory")
	}
	return &Store{dir: dir, scratch: scratch}, nil
}

// Returns the directory holding committed entries.
func (s *Store) Dir() string {
	return s.dir
}

// Returns the path of the entry for the given key and whether it exists.
func (s *Store) Lookup(key digest.Digest) (string, bool) {
	path := s.entryPath(key)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Opens the entry for the given key for reading.
//
// Returns [ErrEntryNotFound] when no entry exists for the key.
func (s *Store) Get(key digest.Digest) (io.ReadCloser, error) {
	path, ok := s.Lookup(key)
	if !ok {
		return nil, errors.Wrapf(ErrEntryNotFound, "%s", key)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(ErrCache, err.Error())
	}
	return f, nil
}

// Creates a new in-progress entry in the scratch directory.
//
// The entry must be finished with either Commit or Discard.
func (s *Store) Create() (*Entry, error) {
	f, err := os.CreateTemp(s.scratch, "entry-*")
	if err != nil {
		return nil, errors.Wrap(ErrCache, err.Error())
	}
	return &Entry{f: f, store: s}, nil
}

// Streams r into a new entry and commits it under the given key.
func (s *Store) Put(key digest.Digest, r io.Reader) error {
	entry, err := s.Create()
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, r); err != nil {
		entry.Discard()
		return errors.Wrap(ErrCache, err.Error())
	}
	return entry.Commit(key)
}

// Removes all committed entries.
//
// In-progress scratch files are left alone; a concurrent writer may still
// commit after the prune completes.
func (s *Store) Prune() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+entryExt))
	if err != nil {
		return errors.Wrap(ErrCache, err.Error())
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(ErrCache, err.Error())
		}
	}
	return nil
}

// Returns the path an entry for the given key would occupy.
//
// Entries are flat files named "<algorithm>-<hex>.tar" so a single directory
// listing shows the whole cache.
func (s *Store) entryPath(key digest.Digest) string {
	return filepath.Join(s.dir, key.Algorithm().String()+"-"+key.Encoded()+entryExt)
}

// An in-progress cache entry backed by a scratch file.
type Entry struct {
	f     *os.File
	store *Store
}

// Writes to the underlying scratch file.
func (e *Entry) Write(p []byte) (int, error) {
	return e.f.Write(p)
}

// Returns the path of the scratch file backing the entry.
//
// Callers that produce their output through an external writer (e.g. an
// image export) can write to this path directly before committing.
func (e *Entry) Path() string {
	return e.f.Name()
}

// Publishes the entry under the given key.
//
// The scratch file is synced, closed, and atomically renamed into the store.
// Committing over an existing entry replaces it; both names hold identical
// content by construction.
func (e *Entry) Commit(key digest.Digest) error {
	if err := e.f.Sync(); err != nil {
		e.Discard()
		return errors.Wrap(ErrCache, err.Error())
	}
	if err := e.f.Close(); err != nil {
		os.Remove(e.f.Name())
		return errors.Wrap(ErrCache, err.Error())
	}
	if err := os.Rename(e.f.Name(), e.store.entryPath(key)); err != nil {
		os.Remove(e.f.Name())
		return errors.Wrap(ErrCache, err.Error())
	}
	return nil
}

// Abandons the entry and removes its scratch file.
func (e *Entry) Discard() {
	e.f.Close()
	os.Remove(e.f.Name())
}
