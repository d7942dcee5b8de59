package jsonfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testDoc struct {
	Balance float64  `json:"balance"`
	Tags    []string `json:"tags"`
}

func TestStore_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	found, err := s.Load("trades", &testDoc{})
	if err != nil {
		t.Fatalf("Load(missing): %v", err)
	}
	if found {
		t.Fatal("expected found=false for missing document")
	}

	want := testDoc{Balance: 9995.75, Tags: []string{"a", "b"}}
	if err := s.Save("trades", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got testDoc
	found, err = s.Load("trades", &got)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if got.Balance != want.Balance || len(got.Tags) != 2 {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestStore_SaveReplacesWhole(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Save("doc", testDoc{Balance: 1, Tags: []string{"x"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("doc", testDoc{Balance: 2}); err != nil {
		t.Fatalf("Save(overwrite): %v", err)
	}

	var got testDoc
	if _, err := s.Load("doc", &got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Balance != 2 || len(got.Tags) != 0 {
		t.Errorf("expected whole-document replacement, got %+v", got)
	}
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Save("doc", testDoc{Balance: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "doc.json")); err != nil {
		t.Errorf("expected doc.json to exist: %v", err)
	}
}
