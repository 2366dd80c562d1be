package crashlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDirReader_ReadEntries(t *testing.T) {
	dir := t.TempDir()

	recent := filepath.Join(dir, "app.crash")
	if err := os.WriteFile(recent, []byte("segfault in renderer\nstack line 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	old := filepath.Join(dir, "old.crash")
	if err := os.WriteFile(old, []byte("ancient crash"), 0644); err != nil {
		t.Fatal(err)
	}
	staleTime := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(old, staleTime, staleTime); err != nil {
		t.Fatal(err)
	}

	// Subdirectories are skipped.
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	r := NewDirReader(dir, nil)
	entries, err := r.ReadEntries(24)
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry within the window, got %d", len(entries))
	}
	if entries[0].Source != "app.crash" {
		t.Errorf("Source = %q", entries[0].Source)
	}
	if entries[0].Message != "segfault in renderer" {
		t.Errorf("Message should be the first line, got %q", entries[0].Message)
	}
}

func TestDirReader_ReadEntries_NonPositiveWindow(t *testing.T) {
	r := NewDirReader(t.TempDir(), nil)

	for _, hours := range []int{0, -5} {
		entries, err := r.ReadEntries(hours)
		if err != nil {
			t.Errorf("ReadEntries(%d) errored: %v", hours, err)
		}
		if entries != nil {
			t.Errorf("ReadEntries(%d) = %v, want nil", hours, entries)
		}
	}
}

func TestDirReader_ReadEntries_MissingDir(t *testing.T) {
	r := NewDirReader("/does/not/exist", nil)

	entries, err := r.ReadEntries(24)
	if err != nil {
		t.Fatalf("Missing directory must not error: %v", err)
	}
	if entries != nil {
		t.Errorf("Expected no entries, got %v", entries)
	}
}

func TestFirstLine_CapsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.crash")

	// One very long line with no newline in the first 512 bytes.
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 4096)), 0644); err != nil {
		t.Fatal(err)
	}

	line := firstLine(path)
	if len(line) != 512 {
		t.Errorf("Expected the message capped at 512 bytes, got %d", len(line))
	}
}
