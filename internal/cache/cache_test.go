package cache_test

import (
	"os"
	"testing"

	"github.com/wuchris/glci/internal/cache"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := cache.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	type payload struct {
		Values []float64 `json:"values"`
	}
	want := payload{Values: []float64{1, 2, 3}}
	key := cache.Key("FRED:WALCL", "2020-01-01", "2020-12-31")

	if err := c.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	found, err := c.Get(key, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if len(got.Values) != 3 || got.Values[2] != 3 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGetMissingKey(t *testing.T) {
	c, err := cache.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	var dst map[string]int
	found, err := c.Get("nope", &dst)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected found=false for missing key")
	}
}

func TestCloseRemovesBackingFile(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Put("k", 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after Close, want 0", len(entries))
	}
}

func TestLenTracksEntries(t *testing.T) {
	c, err := cache.New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	n, err := c.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 0 {
		t.Fatalf("Len() = %d, want 0", n)
	}

	_ = c.Put(cache.Key("A", "", ""), 1)
	_ = c.Put(cache.Key("B", "", ""), 2)

	n, err = c.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}
}
