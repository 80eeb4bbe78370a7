package file

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileWithSyncReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_settings.json")
	if err := WriteFileWithSync(path, []byte(`{"enabled":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteFileWithSync(path, []byte(`{"enabled":false}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != `{"enabled":false}` {
		t.Fatalf("unexpected content %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestWriteFileWithSyncMissingDir(t *testing.T) {
	if err := WriteFileWithSync(filepath.Join(t.TempDir(), "nope", "x.json"), nil); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
