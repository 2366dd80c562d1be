package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/bootguard/pkg/clock"
	"github.com/psantana5/bootguard/pkg/logging"
)

const (
	// correlationWindow bounds how far apart two crashes may be and
	// still count as correlated.
	correlationWindow = 60 * time.Second
	// recurrenceThreshold is the count at which a cause is flagged as
	// recurring.
	recurrenceThreshold = 3
)

// Backend persists analytics records. The store works fully in memory
// when no backend is wired; with one, appends are written through and
// history is hydrated at load time.
type Backend interface {
	AppendCrash(CrashReport) error
	AppendRecoveryAttempt(RecoveryAttempt) error
	AppendSafeModeUsage(SafeModeUsage) error
	LoadCrashes() ([]CrashReport, error)
	LoadRecoveryAttempts() ([]RecoveryAttempt, error)
	LoadSafeModeUsages() ([]SafeModeUsage, error)
	Prune(cutoff time.Time) (int64, error)
}

// Store accumulates crash reports, recovery attempts and safe-mode
// sessions, and answers frequency, pattern and success-rate queries.
// Appends and aggregation are safe under concurrent use.
type Store struct {
	mu       sync.RWMutex
	crashes  []CrashReport
	attempts []RecoveryAttempt
	sessions []SafeModeUsage

	backend Backend
	clk     clock.Clock
	log     *logging.Logger
}

func NewStore(backend Backend, clk clock.Clock, log *logging.Logger) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	return &Store{backend: backend, clk: clk, log: log}
}

// Load hydrates in-memory history from the backend. Without a backend
// it is a no-op.
func (s *Store) Load() error {
	if s.backend == nil {
		return nil
	}

	crashes, err := s.backend.LoadCrashes()
	if err != nil {
		return fmt.Errorf("failed to load crash history: %w", err)
	}
	attempts, err := s.backend.LoadRecoveryAttempts()
	if err != nil {
		return fmt.Errorf("failed to load recovery attempts: %w", err)
	}
	sessions, err := s.backend.LoadSafeModeUsages()
	if err != nil {
		return fmt.Errorf("failed to load safe mode sessions: %w", err)
	}

	s.mu.Lock()
	s.crashes = crashes
	s.attempts = attempts
	s.sessions = sessions
	s.mu.Unlock()
	return nil
}

// RecordCrash appends a crash report. A nil report is rejected. An
// empty ID or timestamp is filled in.
func (s *Store) RecordCrash(report *CrashReport) error {
	if report == nil {
		return fmt.Errorf("crash report must not be nil")
	}
	r := *report
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clk.Now()
	}

	s.mu.Lock()
	s.crashes = append(s.crashes, r)
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.AppendCrash(r); err != nil {
			s.log.Error("Failed to persist crash report", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// RecordRecoveryAttempt appends a recovery attempt. Nil is rejected.
func (s *Store) RecordRecoveryAttempt(attempt *RecoveryAttempt) error {
	if attempt == nil {
		return fmt.Errorf("recovery attempt must not be nil")
	}
	a := *attempt
	if a.Timestamp.IsZero() {
		a.Timestamp = s.clk.Now()
	}

	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.AppendRecoveryAttempt(a); err != nil {
			s.log.Error("Failed to persist recovery attempt", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// RecordSafeModeUsage appends a safe-mode session, or updates the
// recorded session with the same ID so closing a session never leaves a
// duplicate open record. Nil is rejected.
func (s *Store) RecordSafeModeUsage(usage *SafeModeUsage) error {
	if usage == nil {
		return fmt.Errorf("safe mode usage must not be nil")
	}
	u := *usage
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.StartTime.IsZero() {
		u.StartTime = s.clk.Now()
	}

	s.mu.Lock()
	updated := false
	for i, existing := range s.sessions {
		if existing.ID == u.ID {
			s.sessions[i] = u
			updated = true
			break
		}
	}
	if !updated {
		s.sessions = append(s.sessions, u)
	}
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.AppendSafeModeUsage(u); err != nil {
			s.log.Error("Failed to persist safe mode usage", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// GetCrashFrequencyStats counts crashes in total and within the last
// 24 hours, 7 days and 30 days, inclusive of the window edge.
func (s *Store) GetCrashFrequencyStats() CrashFrequencyStats {
	now := s.clk.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CrashFrequencyStats{
		TotalCrashes:       len(s.crashes),
		CrashesByComponent: make(map[string]int),
	}
	for _, c := range s.crashes {
		age := now.Sub(c.Timestamp)
		if age <= 24*time.Hour {
			stats.CrashesLast24Hours++
		}
		if age <= 7*24*time.Hour {
			stats.CrashesLast7Days++
		}
		if age <= 30*24*time.Hour {
			stats.CrashesLast30Days++
		}
		if c.Component != "" {
			stats.CrashesByComponent[c.Component]++
		}
	}
	return stats
}

// AnalyzeFailurePatterns groups crashes by normalized cause and
// component, finds causes recurring above the threshold, and detects
// distinct causes co-occurring within the correlation window.
func (s *Store) AnalyzeFailurePatterns() FailurePatternAnalysis {
	s.mu.RLock()
	crashes := append([]CrashReport(nil), s.crashes...)
	s.mu.RUnlock()

	analysis := FailurePatternAnalysis{}

	patternCounts := make(map[string]int)
	causeCounts := make(map[string]int)
	for _, c := range crashes {
		patternCounts[patternKey(c)]++
		causeCounts[c.CauseType]++
	}
	for pattern, count := range patternCounts {
		analysis.CommonPatterns = append(analysis.CommonPatterns, PatternCount{Pattern: pattern, Count: count})
	}
	sort.Slice(analysis.CommonPatterns, func(i, j int) bool {
		if analysis.CommonPatterns[i].Count != analysis.CommonPatterns[j].Count {
			return analysis.CommonPatterns[i].Count > analysis.CommonPatterns[j].Count
		}
		return analysis.CommonPatterns[i].Pattern < analysis.CommonPatterns[j].Pattern
	})

	for cause, count := range causeCounts {
		if cause != "" && count >= recurrenceThreshold {
			analysis.RecurringIssues = append(analysis.RecurringIssues, cause)
		}
	}
	sort.Strings(analysis.RecurringIssues)

	analysis.CorrelatedFailures = correlate(crashes)
	return analysis
}

// correlate walks crashes in time order and groups runs whose adjacent
// gaps fit in the correlation window. Only runs spanning more than one
// distinct cause are correlated failures.
func correlate(crashes []CrashReport) []CorrelatedFailureGroup {
	if len(crashes) < 2 {
		return nil
	}
	sorted := append([]CrashReport(nil), crashes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var groups []CorrelatedFailureGroup
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) <= correlationWindow {
			continue
		}
		run := sorted[start:i]
		if len(run) >= 2 {
			causes := distinctCauses(run)
			if len(causes) >= 2 {
				groups = append(groups, CorrelatedFailureGroup{
					WindowStart: run[0].Timestamp,
					Causes:      causes,
					Count:       len(run),
				})
			}
		}
		start = i
	}
	return groups
}

func distinctCauses(crashes []CrashReport) []string {
	seen := make(map[string]bool)
	var causes []string
	for _, c := range crashes {
		if c.CauseType != "" && !seen[c.CauseType] {
			seen[c.CauseType] = true
			causes = append(causes, c.CauseType)
		}
	}
	sort.Strings(causes)
	return causes
}

func patternKey(c CrashReport) string {
	cause := c.CauseType
	if cause == "" {
		cause = "unknown"
	}
	component := c.Component
	if component == "" {
		component = "unknown"
	}
	return cause + "/" + component
}

// GetRecoverySuccessStats returns every attempt and the overall success
// percentage. An empty store yields a zero rate, never a division by
// zero.
func (s *Store) GetRecoverySuccessStats() RecoverySuccessStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RecoverySuccessStats{
		Attempts:      append([]RecoveryAttempt(nil), s.attempts...),
		TotalAttempts: len(s.attempts),
	}
	for _, a := range s.attempts {
		if a.WasSuccessful {
			stats.SuccessfulAttempts++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.OverallSuccessRate = float64(stats.SuccessfulAttempts) / float64(stats.TotalAttempts) * 100
	}
	return stats
}

// GetSafeModeStats summarizes recorded safe-mode sessions. Sessions
// without an end time count as open and contribute no duration.
func (s *Store) GetSafeModeStats() SafeModeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SafeModeStats{TotalSessions: len(s.sessions)}
	closed := 0
	for _, u := range s.sessions {
		if u.EndTime.IsZero() {
			stats.OpenSessions++
			continue
		}
		stats.TotalDuration += u.EndTime.Sub(u.StartTime)
		closed++
	}
	if closed > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(closed)
	}
	return stats
}

// GenerateReport bundles all aggregate views into one snapshot.
func (s *Store) GenerateReport() Report {
	return Report{
		GeneratedAt: s.clk.Now(),
		Frequency:   s.GetCrashFrequencyStats(),
		Patterns:    s.AnalyzeFailurePatterns(),
		Recovery:    s.GetRecoverySuccessStats(),
		SafeMode:    s.GetSafeModeStats(),
	}
}

// CleanupOldData removes records older than now minus retention, in
// memory and in the backend. Returns how many records were removed from
// memory. Safe to call on an empty store.
func (s *Store) CleanupOldData(retention time.Duration) int {
	cutoff := s.clk.Now().Add(-retention)

	s.mu.Lock()
	removed := 0

	kept := s.crashes[:0]
	for _, c := range s.crashes {
		if c.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.crashes = kept

	keptAttempts := s.attempts[:0]
	for _, a := range s.attempts {
		if a.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keptAttempts = append(keptAttempts, a)
	}
	s.attempts = keptAttempts

	keptSessions := s.sessions[:0]
	for _, u := range s.sessions {
		if u.StartTime.Before(cutoff) {
			removed++
			continue
		}
		keptSessions = append(keptSessions, u)
	}
	s.sessions = keptSessions
	s.mu.Unlock()

	if s.backend != nil {
		if _, err := s.backend.Prune(cutoff); err != nil {
			s.log.Error("Failed to prune persisted analytics", map[string]interface{}{"error": err.Error()})
		}
	}
	if removed > 0 {
		s.log.Info("Cleaned up old analytics data", map[string]interface{}{
			"removed": removed, "cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return removed
}
