package recovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/bootguard/pkg/catalog"
	"github.com/psantana5/bootguard/pkg/clock"
)

func newTestManager(t *testing.T) (*Manager, *catalog.Catalog) {
	t.Helper()
	cat := catalog.New(t.TempDir())
	return NewManager(Config{Catalog: cat}), cat
}

func settingsPath(cat *catalog.Catalog) string {
	return filepath.Join(cat.BaseDir, "settings.json")
}

func TestManager_RecoverMissingConfiguration(t *testing.T) {
	m, cat := newTestManager(t)
	path := settingsPath(cat)

	result := m.RecoverMissingConfiguration(path)
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered, got %s (%s)", result.Outcome, result.Message)
	}
	if !result.Succeeded {
		t.Error("Recovered result must report Succeeded=true")
	}

	// The created file must parse and carry the factory defaults.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read created file: %v", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(content, &settings); err != nil {
		t.Fatalf("Default configuration is not valid JSON: %v", err)
	}
	if settings["theme"] != "system" {
		t.Errorf("Expected default theme 'system', got %v", settings["theme"])
	}
}

func TestManager_RecoverMissingConfiguration_AlreadyExists(t *testing.T) {
	m, cat := newTestManager(t)
	path := settingsPath(cat)

	original := `{"theme":"dark"}`
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	result := m.RecoverMissingConfiguration(path)
	if result.Outcome != OutcomeNoActionNeeded {
		t.Fatalf("Expected no_action_needed, got %s", result.Outcome)
	}
	if result.Succeeded {
		t.Error("No-action result must report Succeeded=false")
	}

	// User content untouched.
	content, _ := os.ReadFile(path)
	if string(content) != original {
		t.Errorf("Existing file was modified: %s", content)
	}
}

func TestManager_RecoverMissingConfiguration_EmptyPath(t *testing.T) {
	m, _ := newTestManager(t)
	result := m.RecoverMissingConfiguration("")
	if result.Outcome != OutcomeFailed {
		t.Errorf("Empty path should fail, got %s", result.Outcome)
	}
}

func TestManager_RecoverCorruptedConfiguration(t *testing.T) {
	m, cat := newTestManager(t)
	path := settingsPath(cat)

	corrupted := `{ invalid json`
	if err := os.WriteFile(path, []byte(corrupted), 0644); err != nil {
		t.Fatal(err)
	}

	result := m.RecoverCorruptedConfiguration(path)
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered, got %s (%s)", result.Outcome, result.Message)
	}

	// Replacement parses.
	content, _ := os.ReadFile(path)
	var parsed map[string]any
	if err := json.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("Replacement is not valid JSON: %v", err)
	}

	// The corrupted original survives in exactly one backup file.
	backups := findBackups(t, cat.BaseDir, "settings.json")
	if len(backups) != 1 {
		t.Fatalf("Expected 1 backup, found %d", len(backups))
	}
	backupContent, _ := os.ReadFile(backups[0])
	if string(backupContent) != corrupted {
		t.Errorf("Backup does not preserve original content: %s", backupContent)
	}
}

func TestManager_RecoverCorruptedConfiguration_ValidFile(t *testing.T) {
	m, cat := newTestManager(t)
	path := settingsPath(cat)

	original := `{"theme":"dark","font_size":18}`
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	result := m.RecoverCorruptedConfiguration(path)
	if result.Outcome != OutcomeNoActionNeeded {
		t.Fatalf("Valid file should need no action, got %s", result.Outcome)
	}
	content, _ := os.ReadFile(path)
	if string(content) != original {
		t.Error("Valid user content was rewritten")
	}
	if backups := findBackups(t, cat.BaseDir, "settings.json"); len(backups) != 0 {
		t.Errorf("No backup expected for a valid file, found %d", len(backups))
	}
}

func TestManager_RecoverCorruptedConfiguration_MissingFallsBack(t *testing.T) {
	m, cat := newTestManager(t)
	path := settingsPath(cat)

	result := m.RecoverCorruptedConfiguration(path)
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered via default creation, got %s", result.Outcome)
	}
	if result.Action != ActionCreateDefaultConfiguration {
		t.Errorf("Expected create_default_configuration, got %s", result.Action)
	}
}

func TestManager_RecoverMissingDirectories(t *testing.T) {
	m, cat := newTestManager(t)
	nested := filepath.Join(cat.BaseDir, "a", "b", "c")

	result := m.RecoverMissingDirectories(nested)
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered, got %s (%s)", result.Outcome, result.Message)
	}
	if info, err := os.Stat(nested); err != nil || !info.IsDir() {
		t.Errorf("Nested directory was not created: %v", err)
	}

	// Second call is a no-op.
	again := m.RecoverMissingDirectories(nested)
	if again.Outcome != OutcomeNoActionNeeded {
		t.Errorf("Existing directory should need no action, got %s", again.Outcome)
	}
}

func TestManager_CreateConfigurationBackup_Unique(t *testing.T) {
	fixed := clock.Fixed{Time: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cat := catalog.New(t.TempDir())
	m := NewManager(Config{Catalog: cat, Clock: fixed})

	path := settingsPath(cat)
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	// Same frozen clock: the sequence counter alone must keep the two
	// backups apart.
	first, err := m.CreateConfigurationBackup(path)
	if err != nil {
		t.Fatalf("First backup failed: %v", err)
	}
	second, err := m.CreateConfigurationBackup(path)
	if err != nil {
		t.Fatalf("Second backup failed: %v", err)
	}
	if first == second {
		t.Errorf("Back-to-back backups collided: %s", first)
	}
	for _, b := range []string{first, second} {
		if _, err := os.Stat(b); err != nil {
			t.Errorf("Backup %s does not exist: %v", b, err)
		}
	}
}

func TestManager_CreateConfigurationBackup_MissingSource(t *testing.T) {
	m, cat := newTestManager(t)

	backup, err := m.CreateConfigurationBackup(filepath.Join(cat.BaseDir, "nope.json"))
	if err != nil {
		t.Fatalf("Missing source must not error: %v", err)
	}
	if backup != "" {
		t.Errorf("Missing source should yield empty backup path, got %s", backup)
	}
}

func TestManager_IdentifyRequiredRecoveryActions(t *testing.T) {
	m, cat := newTestManager(t)

	// Fresh base dir: every subdirectory and config file is missing.
	actions := m.IdentifyRequiredRecoveryActions()
	if !containsAction(actions, ActionCreateMissingDirectories) {
		t.Error("Expected create_missing_directories")
	}
	if !containsAction(actions, ActionCreateDefaultConfiguration) {
		t.Error("Expected create_default_configuration")
	}

	// Dry run must not modify anything.
	if _, err := os.Stat(filepath.Join(cat.BaseDir, "notes")); !os.IsNotExist(err) {
		t.Error("Dry run created a directory")
	}

	// Deduplicated: several missing files still yield one action each.
	count := 0
	for _, a := range actions {
		if a == ActionCreateDefaultConfiguration {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected deduplicated actions, got %d create_default_configuration entries", count)
	}
}

func TestManager_PerformComprehensiveRecovery(t *testing.T) {
	m, cat := newTestManager(t)

	// One valid file that must survive, one corrupted one.
	valid := filepath.Join(cat.BaseDir, "hotkeys.json")
	if err := os.WriteFile(valid, []byte(`{"new_note":"f2"}`), 0644); err != nil {
		t.Fatal(err)
	}
	corrupted := settingsPath(cat)
	if err := os.WriteFile(corrupted, []byte("not json at all"), 0644); err != nil {
		t.Fatal(err)
	}

	results := m.PerformComprehensiveRecovery()
	if len(results) != len(cat.Directories())+len(cat.ConfigFiles()) {
		t.Fatalf("Expected one result per catalog entry, got %d", len(results))
	}

	for _, res := range results {
		if res.Outcome == OutcomeFailed {
			t.Errorf("Unexpected failure: %s", res.Message)
		}
	}

	// Valid user content untouched.
	content, _ := os.ReadFile(valid)
	if string(content) != `{"new_note":"f2"}` {
		t.Error("Comprehensive recovery rewrote a valid file")
	}

	// Corrupted file replaced and backed up.
	var parsed map[string]any
	content, _ = os.ReadFile(corrupted)
	if err := json.Unmarshal(content, &parsed); err != nil {
		t.Errorf("Corrupted file was not replaced with valid defaults: %v", err)
	}
	if backups := findBackups(t, cat.BaseDir, "settings.json"); len(backups) != 1 {
		t.Errorf("Expected 1 backup of corrupted settings, found %d", len(backups))
	}
}

func TestManager_ResetToFactoryDefaults(t *testing.T) {
	m, cat := newTestManager(t)

	// A perfectly valid file still gets reset, but only after a backup.
	path := settingsPath(cat)
	if err := os.WriteFile(path, []byte(`{"theme":"dark"}`), 0644); err != nil {
		t.Fatal(err)
	}

	result := m.ResetToFactoryDefaults()
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered, got %s (%s)", result.Outcome, result.Message)
	}
	if result.Action != ActionResetToFactoryDefaults {
		t.Errorf("Expected reset_to_factory_defaults, got %s", result.Action)
	}

	var settings map[string]any
	content, _ := os.ReadFile(path)
	if err := json.Unmarshal(content, &settings); err != nil {
		t.Fatal(err)
	}
	if settings["theme"] != "system" {
		t.Errorf("Factory reset did not restore defaults, theme = %v", settings["theme"])
	}
	if backups := findBackups(t, cat.BaseDir, "settings.json"); len(backups) != 1 {
		t.Errorf("Expected the overwritten file to be backed up, found %d backups", len(backups))
	}

	for _, dir := range cat.Directories() {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Directory %s missing after factory reset", dir)
		}
	}
}

func findBackups(t *testing.T, dir, base string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var backups []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base+".backup-") {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	return backups
}

func containsAction(actions []Action, want Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}
