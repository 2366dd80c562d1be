package crashlog

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/psantana5/bootguard/pkg/clock"
)

// Entry is one OS-level crash record. The platform log is consumed
// read-only and best-effort: a missing or unreadable log yields no
// entries, never an error.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Reader provides time-windowed access to platform crash entries.
type Reader interface {
	// ReadEntries returns entries from the last hoursBack hours.
	// hoursBack <= 0 yields an empty result without error.
	ReadEntries(hoursBack int) ([]Entry, error)
}

// DirReader reads crash dumps dropped as files into a directory, the
// way apport and systemd-coredump leave them under /var/crash. Each
// file's modification time is the crash time; the first line of content
// is the message.
type DirReader struct {
	Dir   string
	Clock clock.Clock
}

func NewDirReader(dir string, clk clock.Clock) *DirReader {
	if clk == nil {
		clk = clock.System{}
	}
	return &DirReader{Dir: dir, Clock: clk}
}

func (r *DirReader) ReadEntries(hoursBack int) ([]Entry, error) {
	if hoursBack <= 0 {
		return nil, nil
	}
	cutoff := r.Clock.Now().Add(-time.Duration(hoursBack) * time.Hour)

	dirEntries, err := os.ReadDir(r.Dir)
	if err != nil {
		// Best-effort: an absent or unreadable crash directory is
		// simply an empty history.
		return nil, nil
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		entries = append(entries, Entry{
			Timestamp: info.ModTime(),
			Source:    de.Name(),
			Message:   firstLine(filepath.Join(r.Dir, de.Name())),
		})
	}
	return entries, nil
}

// firstLine reads the first line of a crash file, capped so a huge dump
// never gets slurped whole.
func firstLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	line := string(buf[:n])
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}
