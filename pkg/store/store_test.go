package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/psantana5/bootguard/pkg/analytics"
)

func TestNewStore_SelectsBackend(t *testing.T) {
	st, err := NewStore(Config{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	if _, ok := st.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", st)
	}

	if _, err := NewStore(Config{Type: "cassandra"}); err != ErrUnsupportedDatabase {
		t.Errorf("Expected ErrUnsupportedDatabase, got %v", err)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()

	crash := analytics.CrashReport{
		ID:        "crash-1",
		Timestamp: now,
		CauseType: "parse_failure",
		Component: "settings",
		Context:   map[string]string{"key": "value"},
	}
	if err := st.AppendCrash(crash); err != nil {
		t.Fatalf("Failed to append crash: %v", err)
	}

	crashes, err := st.LoadCrashes()
	if err != nil {
		t.Fatalf("Failed to load crashes: %v", err)
	}
	if len(crashes) != 1 || crashes[0].ID != "crash-1" {
		t.Errorf("Unexpected crashes: %+v", crashes)
	}
	if crashes[0].Context["key"] != "value" {
		t.Error("Context map did not round-trip")
	}
}

func TestMemoryStore_SafeModeUpsert(t *testing.T) {
	st := NewMemoryStore()

	session := analytics.SafeModeUsage{ID: "s1", StartTime: time.Now()}
	if err := st.AppendSafeModeUsage(session); err != nil {
		t.Fatal(err)
	}

	// Closing the session updates the existing row instead of adding one.
	session.EndTime = time.Now()
	session.ExitReason = "recovered"
	if err := st.AppendSafeModeUsage(session); err != nil {
		t.Fatal(err)
	}

	sessions, err := st.LoadSafeModeUsages()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session after upsert, got %d", len(sessions))
	}
	if sessions[0].ExitReason != "recovered" {
		t.Errorf("Update was lost: %+v", sessions[0])
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()

	st.AppendCrash(analytics.CrashReport{ID: "old", Timestamp: now.Add(-48 * time.Hour)})
	st.AppendCrash(analytics.CrashReport{ID: "new", Timestamp: now})
	st.AppendRecoveryAttempt(analytics.RecoveryAttempt{Timestamp: now.Add(-48 * time.Hour)})
	st.AppendSafeModeUsage(analytics.SafeModeUsage{ID: "s", StartTime: now.Add(-48 * time.Hour)})

	removed, err := st.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 pruned records, got %d", removed)
	}

	crashes, _ := st.LoadCrashes()
	if len(crashes) != 1 || crashes[0].ID != "new" {
		t.Errorf("Prune kept the wrong crashes: %+v", crashes)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.HealthCheck(); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	crash := analytics.CrashReport{
		ID:             "crash-1",
		Timestamp:      now,
		CauseType:      "file_not_found",
		Message:        "A required file is missing",
		StackSummary:   "open settings.json: no such file",
		Component:      "settings",
		AppVersion:     "1.2.3",
		OSDescription:  "linux",
		RuntimeVersion: "go1.24",
		MemoryUsageMB:  42.5,
		Context:        map[string]string{"mode": "test"},
	}
	if err := st.AppendCrash(crash); err != nil {
		t.Fatalf("Failed to append crash: %v", err)
	}

	crashes, err := st.LoadCrashes()
	if err != nil {
		t.Fatalf("Failed to load crashes: %v", err)
	}
	if len(crashes) != 1 {
		t.Fatalf("Expected 1 crash, got %d", len(crashes))
	}
	got := crashes[0]
	if got.ID != crash.ID || got.CauseType != crash.CauseType || got.Component != crash.Component {
		t.Errorf("Crash did not round-trip: %+v", got)
	}
	if got.Context["mode"] != "test" {
		t.Errorf("Context JSON did not round-trip: %+v", got.Context)
	}
}

func TestSQLiteStore_ConcurrentAppends(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "concurrent.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	numWriters := 20
	var wg sync.WaitGroup
	errCh := make(chan error, numWriters)

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			crash := analytics.CrashReport{
				ID:        fmt.Sprintf("crash-%d", idx),
				Timestamp: time.Now(),
				CauseType: "parse_failure",
			}
			if err := st.AppendCrash(crash); err != nil {
				errCh <- fmt.Errorf("append %d failed: %w", idx, err)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	crashes, err := st.LoadCrashes()
	if err != nil {
		t.Fatal(err)
	}
	if len(crashes) != numWriters {
		t.Errorf("Expected %d crashes, got %d", numWriters, len(crashes))
	}
}

func TestSQLiteStore_PruneAndVacuum(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prune.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	now := time.Now()
	st.AppendCrash(analytics.CrashReport{ID: "old", Timestamp: now.Add(-72 * time.Hour)})
	st.AppendCrash(analytics.CrashReport{ID: "new", Timestamp: now})
	st.AppendRecoveryAttempt(analytics.RecoveryAttempt{Timestamp: now.Add(-72 * time.Hour)})

	removed, err := st.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 pruned records, got %d", removed)
	}

	crashes, _ := st.LoadCrashes()
	if len(crashes) != 1 || crashes[0].ID != "new" {
		t.Errorf("Prune kept the wrong crashes: %+v", crashes)
	}

	if err := st.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}
