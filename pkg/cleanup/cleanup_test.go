package cleanup

import (
	"testing"
	"time"

	"github.com/psantana5/bootguard/pkg/analytics"
	"github.com/psantana5/bootguard/pkg/clock"
)

func TestManager_CleanupNow(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	store := analytics.NewStore(nil, clock.Fixed{Time: now}, nil)

	store.RecordCrash(&analytics.CrashReport{Timestamp: now.Add(-100 * 24 * time.Hour)})
	store.RecordCrash(&analytics.CrashReport{Timestamp: now.Add(-time.Hour)})

	config := DefaultConfig()
	m := NewManager(config, store, nil, nil)

	m.CleanupNow()

	stats := m.GetStats()
	if stats.TotalRecordsRemoved != 1 {
		t.Errorf("Expected 1 record removed, got %d", stats.TotalRecordsRemoved)
	}
	if stats.LastCleanupTime.IsZero() {
		t.Error("LastCleanupTime was not recorded")
	}
	if got := store.GetCrashFrequencyStats().TotalCrashes; got != 1 {
		t.Errorf("Expected 1 crash remaining, got %d", got)
	}
}

func TestManager_StartStop(t *testing.T) {
	store := analytics.NewStore(nil, nil, nil)

	config := DefaultConfig()
	config.CleanupInterval = time.Hour
	m := NewManager(config, store, nil, nil)

	m.Start()
	m.Stop() // must not hang or panic

	disabled := NewManager(Config{Enabled: false}, store, nil, nil)
	disabled.Start()
	disabled.Stop()
}
