package elements

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestCacheWriteLoadRoundTrip verifies chunk sets survive a write/load cycle
// and the newest generation wins.
func TestCacheWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, 5)

	old := [][]byte{[]byte(`{"near_earth_objects":[]}`)}
	if err := cache.Write(old, time.Unix(1000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	newer := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}
	if err := cache.Write(newer, time.Unix(2000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	chunks, ts, err := cache.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if !ts.Equal(time.Unix(2000, 0)) {
		t.Errorf("timestamp = %v, want %v", ts, time.Unix(2000, 0))
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if string(chunks[0]) != `{"a":1}` || string(chunks[1]) != `{"b":2}` {
		t.Errorf("chunks out of order or corrupted: %q %q", chunks[0], chunks[1])
	}
}

// TestCachePrune verifies old fetch generations are removed beyond maxSets.
func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, 2)

	for i := 0; i < 4; i++ {
		data := [][]byte{[]byte(`{}`)}
		if err := cache.Write(data, time.Unix(int64(1000+i), 0)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d files after prune, want 2", len(entries))
	}

	// The newest generation must still load.
	_, ts, err := cache.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if !ts.Equal(time.Unix(1003, 0)) {
		t.Errorf("timestamp = %v, want %v", ts, time.Unix(1003, 0))
	}
}

// TestCacheEmpty verifies LoadLatest fails cleanly on a missing directory.
func TestCacheEmpty(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "does-not-exist"), 5)
	if _, _, err := cache.LoadLatest(); err == nil {
		t.Fatal("expected error for empty cache")
	}
}

// TestCacheIgnoresForeignFiles verifies unrelated files in the cache dir are
// left alone and not treated as generations.
func TestCacheIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(dir, 1)
	if err := cache.Write([][]byte{[]byte(`{}`)}, time.Unix(5000, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	if err != nil || string(data) != "keep" {
		t.Errorf("foreign file touched: %q, %v", data, err)
	}
}

// TestStoreFind verifies lookup by ID against the atomic store.
func TestStoreFind(t *testing.T) {
	store := NewStore()
	if _, ok := store.Find("2000433"); ok {
		t.Error("Find on empty store should report not found")
	}
	if age := store.AgeSeconds(); age != -1 {
		t.Errorf("AgeSeconds on empty store = %f, want -1", age)
	}

	store.Set(&Dataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Bodies: []Body{
			{ID: "2000433", Name: "433 Eros"},
			{ID: "2000004", Name: "4 Vesta"},
		},
	})

	b, ok := store.Find("2000004")
	if !ok || b.Name != "4 Vesta" {
		t.Errorf("Find = %+v, %v; want 4 Vesta", b, ok)
	}
	if age := store.AgeSeconds(); age < 0 || age > 60 {
		t.Errorf("AgeSeconds = %f, want small positive", age)
	}
}
