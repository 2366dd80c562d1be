package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/bootguard/pkg/analytics"
	"github.com/psantana5/bootguard/pkg/logging"
)

// Config defines retention policy and cleanup intervals for the
// analytics history.
type Config struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
	VacuumInterval  time.Duration
}

// DefaultConfig returns sensible defaults for cleanup
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		VacuumInterval:  7 * 24 * time.Hour,
	}
}

// Vacuumer reclaims storage after deletions. The persistence backends
// implement it; pure in-memory setups pass nil.
type Vacuumer interface {
	Vacuum() error
}

// Manager runs periodic retention cleanup over the analytics store.
type Manager struct {
	config Config
	store  *analytics.Store
	vac    Vacuumer
	log    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// Stats tracks cleanup operations
type Stats struct {
	LastCleanupTime     time.Time
	LastVacuumTime      time.Time
	TotalRecordsRemoved int64
	TotalVacuumRuns     int64
}

// NewManager creates a new cleanup manager
func NewManager(config Config, store *analytics.Store, vac Vacuumer, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config: config,
		store:  store,
		vac:    vac,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the periodic cleanup loops
func (m *Manager) Start() {
	if !m.config.Enabled {
		m.log.Info("Analytics cleanup disabled")
		return
	}

	m.log.Info("Starting analytics cleanup", map[string]interface{}{
		"retention_days": m.config.RetentionDays,
		"interval":       m.config.CleanupInterval.String(),
	})

	m.wg.Add(1)
	go m.cleanupLoop()

	if m.vac != nil {
		m.wg.Add(1)
		go m.vacuumLoop()
	}
}

// Stop gracefully stops the cleanup manager
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CleanupNow()
		}
	}
}

func (m *Manager) vacuumLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.VacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.vacuum()
		}
	}
}

// CleanupNow triggers an immediate retention pass
func (m *Manager) CleanupNow() {
	retention := time.Duration(m.config.RetentionDays) * 24 * time.Hour
	removed := m.store.CleanupOldData(retention)

	m.mu.Lock()
	m.stats.LastCleanupTime = time.Now()
	m.stats.TotalRecordsRemoved += int64(removed)
	m.mu.Unlock()
}

func (m *Manager) vacuum() {
	if err := m.vac.Vacuum(); err != nil {
		m.log.Error("Analytics vacuum failed", map[string]interface{}{"error": err.Error()})
		return
	}

	m.mu.Lock()
	m.stats.LastVacuumTime = time.Now()
	m.stats.TotalVacuumRuns++
	m.mu.Unlock()
}

// GetStats returns current cleanup statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
