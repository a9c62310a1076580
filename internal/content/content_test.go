package content

import (
	"bytes"
	"strings"
	"testing"

	"socratic-go/internal/ledger"
)

// stores returns one of each content store implementation backed by a temp dir.
func stores(t *testing.T) map[string]ledger.ContentStore {
	t.Helper()

	fsStore, err := NewFileSystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	return map[string]ledger.ContentStore{
		"memory":     NewMemoryStore(),
		"filesystem": fsStore,
	}
}

func TestContentStore_PutGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := "encrypted document bytes"
			if err := store.PutContent("sum-1", strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutContent() error = %v", err)
			}

			var buf bytes.Buffer
			if err := store.GetContent("sum-1", &buf); err != nil {
				t.Fatalf("GetContent() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("GetContent() = %q, want %q", buf.String(), data)
			}
		})
	}
}

func TestContentStore_PutIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := "same bytes"
			for i := 0; i < 2; i++ {
				if err := store.PutContent("sum-1", strings.NewReader(data), int64(len(data))); err != nil {
					t.Fatalf("PutContent() attempt %d error = %v", i+1, err)
				}
			}

			var buf bytes.Buffer
			if err := store.GetContent("sum-1", &buf); err != nil {
				t.Fatalf("GetContent() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("GetContent() = %q, want %q", buf.String(), data)
			}
		})
	}
}

func TestContentStore_SizeMismatch(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.PutContent("sum-1", strings.NewReader("short"), 100)
			if err == nil {
				t.Error("PutContent() with wrong size expected error")
			}
		})
	}
}

func TestContentStore_GetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := store.GetContent("no-such-sum", &buf); err == nil {
				t.Error("GetContent() for missing checksum expected error")
			}
		})
	}
}

func TestContentStore_ValidateSetup(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.ValidateSetup(); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}
