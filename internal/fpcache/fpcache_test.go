package fpcache

import (
	"path/filepath"
	"testing"
)

func TestPutGet(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "fp.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	key := "refds|0000000000000000"
	if _, ok := cache.Get(key); ok {
		t.Error("Get on empty cache should miss")
	}

	cache.Put(key, "abc123")
	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get after Put should hit")
	}
	if got != "abc123" {
		t.Errorf("Get = %q, want %q", got, "abc123")
	}
}

func TestOverwrite(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "fp.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	cache.Put("k", "old")
	cache.Put("k", "new")
	if got, _ := cache.Get("k"); got != "new" {
		t.Errorf("Get = %q, want %q", got, "new")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fp.db")

	cache, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cache.Put("episode-7", "deadbeef")
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("episode-7")
	if !ok || got != "deadbeef" {
		t.Errorf("Get after reopen = %q, %v", got, ok)
	}
}

func TestCloseNil(t *testing.T) {
	var cache *Cache
	if err := cache.Close(); err != nil {
		t.Errorf("Close on nil should be nil, got %v", err)
	}
}
