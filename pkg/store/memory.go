package store

import (
	"sync"
	"time"

	"github.com/psantana5/bootguard/pkg/analytics"
)

// MemoryStore is an in-memory Store for tests and hosts that do not
// want persistence across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	crashes  []analytics.CrashReport
	attempts []analytics.RecoveryAttempt
	sessions []analytics.SafeModeUsage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendCrash(r analytics.CrashReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crashes = append(s.crashes, r)
	return nil
}

func (s *MemoryStore) AppendRecoveryAttempt(a analytics.RecoveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *MemoryStore) AppendSafeModeUsage(u analytics.SafeModeUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.sessions {
		if existing.ID == u.ID {
			s.sessions[i] = u
			return nil
		}
	}
	s.sessions = append(s.sessions, u)
	return nil
}

func (s *MemoryStore) LoadCrashes() ([]analytics.CrashReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]analytics.CrashReport(nil), s.crashes...), nil
}

func (s *MemoryStore) LoadRecoveryAttempts() ([]analytics.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]analytics.RecoveryAttempt(nil), s.attempts...), nil
}

func (s *MemoryStore) LoadSafeModeUsages() ([]analytics.SafeModeUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]analytics.SafeModeUsage(nil), s.sessions...), nil
}

func (s *MemoryStore) Prune(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	crashes := s.crashes[:0]
	for _, c := range s.crashes {
		if c.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		crashes = append(crashes, c)
	}
	s.crashes = crashes

	attempts := s.attempts[:0]
	for _, a := range s.attempts {
		if a.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		attempts = append(attempts, a)
	}
	s.attempts = attempts

	sessions := s.sessions[:0]
	for _, u := range s.sessions {
		if u.StartTime.Before(cutoff) {
			removed++
			continue
		}
		sessions = append(sessions, u)
	}
	s.sessions = sessions

	return removed, nil
}

func (s *MemoryStore) Close() error       { return nil }
func (s *MemoryStore) HealthCheck() error { return nil }
func (s *MemoryStore) Vacuum() error      { return nil }
