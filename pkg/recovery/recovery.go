package recovery

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psantana5/bootguard/pkg/catalog"
	"github.com/psantana5/bootguard/pkg/clock"
	"github.com/psantana5/bootguard/pkg/codec"
	"github.com/psantana5/bootguard/pkg/fsys"
	"github.com/psantana5/bootguard/pkg/logging"
)

// Action is the closed set of corrective operations the manager
// performs against configuration files and directories.
type Action string

const (
	ActionCreateDefaultConfiguration   Action = "create_default_configuration"
	ActionBackupCorruptedConfiguration Action = "backup_corrupted_configuration"
	ActionCreateMissingDirectories     Action = "create_missing_directories"
	ActionResetToFactoryDefaults       Action = "reset_to_factory_defaults"
	ActionNoActionNeeded               Action = "no_action_needed"
)

// Outcome is the three-way result of a recovery call. The Succeeded
// boolean is kept alongside for hosts that only look at a flag: it is
// true only for OutcomeRecovered, so "nothing to do" and "failed" both
// read as false and are told apart by the message.
type Outcome string

const (
	OutcomeNoActionNeeded Outcome = "no_action_needed"
	OutcomeRecovered      Outcome = "recovered"
	OutcomeFailed         Outcome = "failed"
)

// Result reports what one recovery operation did.
type Result struct {
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`
	Succeeded bool      `json:"succeeded"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager performs the smallest corrective action needed for a target.
// Operations never return errors: every I/O fault is absorbed into a
// failed Result. Concurrent calls against the same path are serialized.
type Manager struct {
	cat   *catalog.Catalog
	fs    fsys.FileSystem
	codec codec.Codec
	clk   clock.Clock
	log   *logging.Logger

	locks     sync.Map // path → *sync.Mutex
	backupSeq atomic.Uint64
}

// Config wires a Manager. Catalog is required.
type Config struct {
	Catalog    *catalog.Catalog
	FileSystem fsys.FileSystem
	Codec      codec.Codec
	Clock      clock.Clock
	Logger     *logging.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.FileSystem == nil {
		cfg.FileSystem = fsys.OS{}
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.JSON{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger(logging.INFO, false)
	}
	return &Manager{
		cat:   cfg.Catalog,
		fs:    cfg.FileSystem,
		codec: cfg.Codec,
		clk:   cfg.Clock,
		log:   cfg.Logger,
	}
}

// RecoverMissingConfiguration writes a default payload for path when
// the file does not exist. An existing file is left untouched and
// reported as no action needed.
func (m *Manager) RecoverMissingConfiguration(path string) Result {
	if path == "" {
		return m.failed(ActionCreateDefaultConfiguration, "invalid path: empty")
	}
	unlock := m.lockPath(path)
	defer unlock()
	return m.recoverMissingLocked(path)
}

func (m *Manager) recoverMissingLocked(path string) Result {
	if m.fs.FileExists(path) {
		return m.noAction(fmt.Sprintf("configuration file %s already exists", path))
	}

	payload, err := m.defaultPayload(path)
	if err != nil {
		return m.failed(ActionCreateDefaultConfiguration,
			fmt.Sprintf("could not build default payload for %s: %v", path, err))
	}
	if err := m.fs.WriteFile(path, payload); err != nil {
		return m.failed(ActionCreateDefaultConfiguration, m.ioMessage("write default configuration", path, err))
	}

	m.log.Info("Created default configuration", map[string]interface{}{"path": path})
	return m.recovered(ActionCreateDefaultConfiguration,
		fmt.Sprintf("created default configuration at %s", path))
}

// RecoverCorruptedConfiguration backs up an unparseable file and
// replaces it with defaults. A missing file falls back to default
// creation; a file that parses is left alone.
func (m *Manager) RecoverCorruptedConfiguration(path string) Result {
	if path == "" {
		return m.failed(ActionBackupCorruptedConfiguration, "invalid path: empty")
	}
	unlock := m.lockPath(path)
	defer unlock()
	return m.recoverCorruptedLocked(path)
}

func (m *Manager) recoverCorruptedLocked(path string) Result {
	if !m.fs.FileExists(path) {
		return m.recoverMissingLocked(path)
	}

	content, err := m.fs.ReadFile(path)
	if err != nil {
		return m.failed(ActionBackupCorruptedConfiguration, m.ioMessage("read configuration", path, err))
	}
	if m.codec.Validate(content) == nil {
		return m.noAction(fmt.Sprintf("configuration file %s is valid; nothing to recover", path))
	}

	backupPath := m.backupName(path)
	if err := m.fs.CopyFile(path, backupPath); err != nil {
		return m.failed(ActionBackupCorruptedConfiguration, m.ioMessage("back up corrupted configuration", path, err))
	}

	payload, err := m.defaultPayload(path)
	if err != nil {
		return m.failed(ActionBackupCorruptedConfiguration,
			fmt.Sprintf("could not build default payload for %s: %v", path, err))
	}
	if err := m.fs.WriteFile(path, payload); err != nil {
		return m.failed(ActionBackupCorruptedConfiguration, m.ioMessage("replace corrupted configuration", path, err))
	}

	m.log.Warn("Replaced corrupted configuration", map[string]interface{}{
		"path": path, "backup": backupPath,
	})
	return m.recovered(ActionBackupCorruptedConfiguration,
		fmt.Sprintf("backed up corrupted configuration to %s and restored defaults", backupPath))
}

// RecoverMissingDirectories creates path and any missing intermediate
// segments.
func (m *Manager) RecoverMissingDirectories(path string) Result {
	if path == "" {
		return m.failed(ActionCreateMissingDirectories, "invalid path: empty")
	}
	unlock := m.lockPath(path)
	defer unlock()
	return m.recoverDirectoriesLocked(path)
}

func (m *Manager) recoverDirectoriesLocked(path string) Result {
	if m.fs.DirExists(path) {
		return m.noAction(fmt.Sprintf("directory %s already exists", path))
	}
	if err := m.fs.MkdirAll(path); err != nil {
		return m.failed(ActionCreateMissingDirectories, m.ioMessage("create directory", path, err))
	}
	m.log.Info("Created missing directory", map[string]interface{}{"path": path})
	return m.recovered(ActionCreateMissingDirectories,
		fmt.Sprintf("created directory %s", path))
}

// CreateConfigurationBackup copies path to a fresh, uniquely named
// backup beside it and returns the backup path. A missing source yields
// an empty path with no error.
func (m *Manager) CreateConfigurationBackup(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("invalid path: empty")
	}
	unlock := m.lockPath(path)
	defer unlock()

	if !m.fs.FileExists(path) {
		return "", nil
	}
	backupPath := m.backupName(path)
	if err := m.fs.CopyFile(path, backupPath); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", path, err)
	}
	return backupPath, nil
}

// IdentifyRequiredRecoveryActions re-checks the catalog and reports the
// deduplicated set of actions a comprehensive recovery would take,
// without performing any of them.
func (m *Manager) IdentifyRequiredRecoveryActions() []Action {
	seen := make(map[Action]bool)
	var actions []Action
	add := func(a Action) {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}

	for _, dir := range m.cat.Directories() {
		if !m.fs.DirExists(dir) {
			add(ActionCreateMissingDirectories)
		}
	}
	for _, cf := range m.cat.ConfigFiles() {
		if !m.fs.FileExists(cf.Path) {
			add(ActionCreateDefaultConfiguration)
			continue
		}
		content, err := m.fs.ReadFile(cf.Path)
		if err != nil || m.codec.Validate(content) != nil {
			add(ActionBackupCorruptedConfiguration)
		}
	}
	return actions
}

// PerformComprehensiveRecovery walks the full catalog and applies the
// appropriate single-item recovery to each entry, directories first.
// Valid user content is never rewritten. Every result is returned,
// including the no-action ones.
func (m *Manager) PerformComprehensiveRecovery() []Result {
	var results []Result
	for _, dir := range m.cat.Directories() {
		results = append(results, m.RecoverMissingDirectories(dir))
	}
	for _, cf := range m.cat.ConfigFiles() {
		results = append(results, m.RecoverCorruptedConfiguration(cf.Path))
	}
	return results
}

// ResetToFactoryDefaults regenerates every known configuration file and
// recreates every known directory, regardless of current validity. This
// is destructive; existing files are backed up first when possible.
func (m *Manager) ResetToFactoryDefaults() Result {
	var failures []string
	reset := 0

	for _, dir := range m.cat.Directories() {
		if m.fs.DirExists(dir) {
			continue
		}
		if err := m.fs.MkdirAll(dir); err != nil {
			failures = append(failures, m.ioMessage("create directory", dir, err))
		}
	}

	for _, cf := range m.cat.ConfigFiles() {
		unlock := m.lockPath(cf.Path)
		if m.fs.FileExists(cf.Path) {
			backupPath := m.backupName(cf.Path)
			if err := m.fs.CopyFile(cf.Path, backupPath); err != nil {
				m.log.Warn("Could not back up file before factory reset", map[string]interface{}{
					"path": cf.Path, "error": err.Error(),
				})
			}
		}
		payload, err := m.defaultPayload(cf.Path)
		if err == nil {
			err = m.fs.WriteFile(cf.Path, payload)
		}
		if err != nil {
			failures = append(failures, m.ioMessage("reset configuration", cf.Path, err))
		} else {
			reset++
		}
		unlock()
	}

	if len(failures) > 0 {
		return m.failed(ActionResetToFactoryDefaults,
			fmt.Sprintf("factory reset incomplete (%d file(s) reset): %v", reset, failures))
	}
	m.log.Warn("Factory reset performed", map[string]interface{}{"files_reset": reset})
	return m.recovered(ActionResetToFactoryDefaults,
		fmt.Sprintf("factory reset complete: %d configuration file(s) regenerated", reset))
}

// defaultPayload builds default content for path. Paths outside the
// catalog still get a minimal valid payload so an unknown-but-requested
// target never receives unparseable content.
func (m *Manager) defaultPayload(path string) (string, error) {
	if cf, ok := m.cat.FindConfigFile(path); ok {
		return cf.DefaultPayload(m.codec)
	}
	return m.codec.Marshal(map[string]any{})
}

// backupName returns a unique backup path beside the original. The
// nanosecond timestamp plus a process-wide sequence keeps names unique
// even for back-to-back calls on the same path.
func (m *Manager) backupName(path string) string {
	ts := m.clk.Now().Format("20060102-150405.000000000")
	seq := m.backupSeq.Add(1)
	return fmt.Sprintf("%s.backup-%s-%d", path, ts, seq)
}

func (m *Manager) lockPath(path string) func() {
	v, _ := m.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) ioMessage(op, path string, err error) string {
	if fsys.IsPermission(err) {
		return fmt.Sprintf("failed to %s %s: permission denied (%v)", op, path, err)
	}
	return fmt.Sprintf("failed to %s %s: %v", op, path, err)
}

func (m *Manager) noAction(message string) Result {
	return Result{
		Action:    ActionNoActionNeeded,
		Outcome:   OutcomeNoActionNeeded,
		Succeeded: false,
		Message:   message,
		Timestamp: m.clk.Now(),
	}
}

func (m *Manager) recovered(action Action, message string) Result {
	return Result{
		Action:    action,
		Outcome:   OutcomeRecovered,
		Succeeded: true,
		Message:   message,
		Timestamp: m.clk.Now(),
	}
}

func (m *Manager) failed(action Action, message string) Result {
	m.log.Error("Recovery step failed", map[string]interface{}{
		"action": string(action), "message": message,
	})
	return Result{
		Action:    action,
		Outcome:   OutcomeFailed,
		Succeeded: false,
		Message:   message,
		Timestamp: m.clk.Now(),
	}
}
