package cache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()

	store, err := Open(filepath.Join(root, "layers"), filepath.Join(root, "scratch"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestOpenCreatesDirectories(t *testing.T) {
	store := openTestStore(t)

	info, err := os.Stat(store.Dir())
	if err != nil || !info.IsDir() {
		t.Fatalf("cache dir not created: %v", err)
	}
}

func TestPutLookupGet(t *testing.T) {
	store := openTestStore(t)
	key := digest.FromString("step-1")

	if _, ok := store.Lookup(key); ok {
		t.Fatal("Lookup hit before Put")
	}

	if err := store.Put(key, strings.NewReader("checkpoint data")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path, ok := store.Lookup(key)
	if !ok {
		t.Fatal("Lookup miss after Put")
	}
	if !strings.HasSuffix(path, ".tar") {
		t.Errorf("entry path = %q, want .tar suffix", path)
	}

	r, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "checkpoint data" {
		t.Errorf("content = %q, want %q", data, "checkpoint data")
	}
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(digest.FromString("absent"))
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("error = %v, want ErrEntryNotFound", err)
	}
}

func TestCommitRemovesScratchFile(t *testing.T) {
	store := openTestStore(t)
	key := digest.FromString("step-2")

	entry, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	scratch := entry.Path()

	if _, err := entry.Write([]byte("data")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := entry.Commit(key); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch file %s still exists after commit", scratch)
	}
	if _, ok := store.Lookup(key); !ok {
		t.Error("Lookup miss after commit")
	}
}

func TestDiscard(t *testing.T) {
	store := openTestStore(t)

	entry, err := store.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	scratch := entry.Path()

	entry.Discard()

	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch file %s still exists after discard", scratch)
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)

	for _, s := range []string{"a", "b", "c"} {
		if err := store.Put(digest.FromString(s), strings.NewReader(s)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	for _, s := range []string{"a", "b", "c"} {
		if _, ok := store.Lookup(digest.FromString(s)); ok {
			t.Errorf("entry %q survived prune", s)
		}
	}
}

func TestDistinctKeysDistinctEntries(t *testing.T) {
	store := openTestStore(t)

	a := digest.FromString("a")
	b := digest.FromString("b")

	if err := store.Put(a, strings.NewReader("content-a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(b, strings.NewReader("content-b")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	pathA, _ := store.Lookup(a)
	pathB, _ := store.Lookup(b)
	if pathA == pathB {
		t.Fatalf("distinct keys mapped to the same entry %q", pathA)
	}
}
