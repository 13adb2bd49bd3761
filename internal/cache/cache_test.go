package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFile_ReadMissingReturnsNil(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), FileName))
	raw, _, err := f.Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if raw != nil {
		t.Fatalf("raw = %q, want nil", raw)
	}
}

func TestFile_WriteReadRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	f := New(filepath.Join(dir, FileName))

	if err := f.Write([]byte(`{"sgs":[]}`)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := f.Write([]byte(`{"sgs":[{"sg":1}]}`)); err != nil {
		t.Fatalf("second Write returned error: %v", err)
	}
	raw, mod, err := f.Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(raw) != `{"sgs":[{"sg":1}]}` {
		t.Fatalf("raw = %q", raw)
	}
	if mod.IsZero() {
		t.Fatal("mod time should be set")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}

	if err := f.Remove(); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
}
