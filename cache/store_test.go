package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testRecord() (RequestRecord, ResponseRecord) {
	req := RequestRecord{
		Method:    "POST",
		TargetURL: "https://upstream.example",
		Path:      "chat",
		Headers:   map[string]string{"authorization": "Bearer secret", "content-type": "application/json"},
		Body:      `{"x":1}`,
	}
	res := ResponseRecord{
		StatusCode: 200,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       `{"ok":true}`,
	}
	return req, res
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	path := filepath.Join(store.Dir, "ab", "abcd.json")
	req, res := testRecord()

	if err := store.Put(path, req, res); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record not found after put")
	}
	if got.StatusCode != 200 || got.Body != `{"ok":true}` {
		t.Fatalf("got %+v", got)
	}
}

func TestStoreGetAbsent(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	got, err := store.Get(filepath.Join(store.Dir, "ab", "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("got %+v for a missing record", got)
	}
}

func TestStoreGetCorruptRecordIsAnError(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	path := filepath.Join(store.Dir, "ab", "abcd.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(path); err == nil {
		t.Fatal("corrupt record was not surfaced as an error")
	}
}

func TestStorePutMasksAuthorizationOnDiskOnly(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	path := filepath.Join(store.Dir, "ab", "abcd.json")
	req, res := testRecord()

	if err := store.Put(path, req, res); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret") {
		t.Fatal("token written to disk")
	}
	if !strings.Contains(string(b), AuthMask) {
		t.Fatal("authorization not masked on disk")
	}
	// the in-flight request keeps its token
	if req.Headers["authorization"] != "Bearer secret" {
		t.Fatalf("caller's headers mutated: %v", req.Headers)
	}
}

func TestStorePutOverwrites(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	path := filepath.Join(store.Dir, "ab", "abcd.json")
	req, res := testRecord()

	if err := store.Put(path, req, res); err != nil {
		t.Fatal(err)
	}
	res.Body = `{"ok":false}`
	if err := store.Put(path, req, res); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != `{"ok":false}` {
		t.Fatalf("last write did not win: %s", got.Body)
	}
}

func TestStorePutUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	index, err := OpenRecordIndex(filepath.Join(dir, "records.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	store := NewStore(dir, index)
	req, res := testRecord()

	if err := store.Put(filepath.Join(dir, "ab", "abcd.json"), req, res); err != nil {
		t.Fatal(err)
	}

	if !index.Has("abcd") {
		t.Fatal("record not indexed")
	}
	entries, err := index.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Method != "POST" || entries[0].Status != 200 {
		t.Fatalf("entries: %+v", entries)
	}
}
