package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestNewStoreRequiresDataDir(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatal("expected an error for a missing data dir")
	}
}

func TestNewStoreCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := NewStore(StoreConfig{DataDir: dir}); err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("expected data dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory")
	}
}

func TestLoadAbsentFileYieldsEmptySlice(t *testing.T) {
	store := newTestStore(t)

	records, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", records)
	}
}

func TestLoadEmptyFileYieldsEmptySlice(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(CollectionPosts), nil, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	records, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty slice, got %#v", records)
	}
}

func TestLoadCorruptFileYieldsEmptySlice(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(CollectionPosts), []byte(`{"not":"an array"`), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	records, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty slice, got %#v", records)
	}
}

func TestLoadNullFileYieldsEmptySlice(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(CollectionPosts), []byte("null"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	records, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", records)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store := newTestStore(t)
	want := []record{{ID: 1, Name: "first"}, {ID: 2, Name: "second"}}

	if err := Save(store, CollectionPosts, want); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	got, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveOverwritesWholeCollection(t *testing.T) {
	store := newTestStore(t)
	if err := Save(store, CollectionPosts, []record{{ID: 1, Name: "first"}, {ID: 2, Name: "second"}}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if err := Save(store, CollectionPosts, []record{{ID: 3, Name: "third"}}); err != nil {
		t.Fatalf("failed to save again: %v", err)
	}

	got, err := Load[record](store, CollectionPosts)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("expected only the replacement record, got %#v", got)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	if err := Save(store, CollectionPosts, []record{{ID: 1, Name: "first"}}); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("failed to read data dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}
