package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/bootguard/pkg/classifier"
	"github.com/psantana5/bootguard/pkg/issue"
	"github.com/psantana5/bootguard/pkg/recovery"
	"github.com/psantana5/bootguard/pkg/registry"
	"github.com/psantana5/bootguard/pkg/store"
	"github.com/psantana5/bootguard/pkg/validate"
)

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		BaseDir:    t.TempDir(),
		AppVersion: "test",
		Backend:    store.NewMemoryStore(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func TestEngine_RunStartupCheck_FreshTree(t *testing.T) {
	eng := newTestEngine(t, nil)

	report, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)

	// A fresh data directory yields warnings only: validation passes,
	// safe mode stays off, recovery fills in the missing files.
	assert.True(t, report.Validation.Passed)
	assert.False(t, report.SafeModeActivated)
	assert.False(t, eng.SafeMode().Active())
	require.NotEmpty(t, report.Recovery)

	recovered := 0
	for _, res := range report.Recovery {
		assert.NotEqual(t, recovery.OutcomeFailed, res.Outcome, res.Message)
		if res.Outcome == recovery.OutcomeRecovered {
			recovered++
		}
	}
	assert.Greater(t, recovered, 0, "missing config files should have been created")

	// Recovery attempts were recorded; no-action results were not.
	stats := eng.Analytics().GetRecoverySuccessStats()
	assert.Equal(t, recovered, stats.TotalAttempts)
	assert.InDelta(t, 100.0, stats.OverallSuccessRate, 0.001)
}

func TestEngine_RunStartupCheck_SecondRunClean(t *testing.T) {
	eng := newTestEngine(t, func(opts *Options) {
		opts.Registry = registry.NewMapRegistry()
	})

	_, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)

	// Recovery never regenerates bundled resources; install them so the
	// second run has nothing left to flag.
	for _, path := range eng.Catalog().ResourceFiles() {
		require.NoError(t, os.WriteFile(path, []byte(`{"colors":{}}`), 0644))
	}

	report, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Validation.Passed)
	assert.Empty(t, report.Validation.Issues(), "repaired tree should validate clean")
	assert.Empty(t, report.Recovery)
}

func TestEngine_RunStartupCheck_InfoOnlyIssuesSkipRecovery(t *testing.T) {
	// Without a registry the services category always notes that it was
	// skipped. That note alone must never re-trigger recovery.
	eng := newTestEngine(t, nil)

	_, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)

	for _, path := range eng.Catalog().ResourceFiles() {
		require.NoError(t, os.WriteFile(path, []byte(`{"colors":{}}`), 0644))
	}

	report, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Validation.Passed)

	issues := report.Validation.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, issue.SeverityInformation, issues[0].Severity)
	assert.Empty(t, report.Recovery, "informational notes must not trigger repairs")
}

func TestEngine_RunStartupCheck_CriticalActivatesSafeMode(t *testing.T) {
	baseDir := t.TempDir()
	// Corrupt the critical settings file before the check.
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "settings.json"), []byte("{ invalid json"), 0644))

	reg := registry.NewMapRegistry()
	reg.Register("cloud_sync", struct{}{})
	reg.Register("storage", struct{}{})

	eng := newTestEngine(t, func(opts *Options) {
		opts.BaseDir = baseDir
		opts.Registry = reg
	})

	report, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Validation.Passed)
	assert.True(t, report.SafeModeActivated)
	assert.True(t, eng.SafeMode().Active())
	assert.NotEmpty(t, report.SafeMode.SessionID)

	// Non-essential services were unbound, essential ones kept.
	assert.Nil(t, reg.Resolve("cloud_sync"))
	assert.NotNil(t, reg.Resolve("storage"))

	// The session was recorded open.
	smStats := eng.Analytics().GetSafeModeStats()
	assert.Equal(t, 1, smStats.TotalSessions)
	assert.Equal(t, 1, smStats.OpenSessions)

	// Recovery replaced the corrupted file.
	content, err := os.ReadFile(filepath.Join(baseDir, "settings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "system")
}

func TestEngine_RunStartupCheck_CancelledContext(t *testing.T) {
	eng := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RunStartupCheck(ctx)
	assert.Error(t, err)
}

func TestEngine_ExitSafeMode(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "settings.json"), []byte("{ invalid"), 0644))

	eng := newTestEngine(t, func(opts *Options) { opts.BaseDir = baseDir })
	_, err := eng.RunStartupCheck(context.Background())
	require.NoError(t, err)
	require.True(t, eng.SafeMode().Active())

	changed := eng.ExitSafeMode("issues repaired", true, true)
	assert.True(t, changed)
	assert.False(t, eng.SafeMode().Active())

	smStats := eng.Analytics().GetSafeModeStats()
	assert.Equal(t, 1, smStats.TotalSessions)
	assert.Equal(t, 0, smStats.OpenSessions, "exit should close the recorded session")

	// Exiting normal mode reports no change.
	assert.False(t, eng.ExitSafeMode("again", false, false))
}

func TestEngine_HandleFault(t *testing.T) {
	eng := newTestEngine(t, nil)

	fault := classifier.Fault{
		Category:  classifier.CategoryParseFailure,
		Message:   "invalid character '}' in settings.json",
		Component: "settings",
	}
	report := eng.HandleFault(fault)

	require.NotNil(t, report)
	assert.Equal(t, "parse_failure", report.CauseType)
	assert.Equal(t, "settings", report.Component)
	assert.NotEmpty(t, report.Message)
	assert.NotEmpty(t, report.RuntimeVersion)
	assert.Greater(t, report.MemoryUsageMB, 0.0)

	stats := eng.Analytics().GetCrashFrequencyStats()
	assert.Equal(t, 1, stats.TotalCrashes)
	assert.Equal(t, 1, stats.CrashesByComponent["settings"])

	actions := eng.SuggestActions(fault)
	require.NotEmpty(t, actions)
	assert.Equal(t, "Start in safe mode with default settings", actions[len(actions)-1])
}

func TestEngine_ImportPlatformCrashes(t *testing.T) {
	crashDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(crashDir, "core.app.1000.crash"),
		[]byte("Segmentation fault in libgtk\n"), 0644))

	eng := newTestEngine(t, func(opts *Options) { opts.CrashLogDir = crashDir })

	imported, err := eng.ImportPlatformCrashes(24)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	stats := eng.Analytics().GetCrashFrequencyStats()
	assert.Equal(t, 1, stats.TotalCrashes)
	assert.Equal(t, 1, stats.CrashesByComponent["platform/core.app.1000.crash"])
}

func TestEngine_ValidatorWiring(t *testing.T) {
	eng := newTestEngine(t, func(opts *Options) {
		opts.RequiredServices = []string{"storage"}
	})

	// No registry configured: the services category reports one
	// informational issue and nothing else breaks.
	result := eng.Validator().ValidateServices()
	require.Len(t, result.Issues, 1)
	assert.Equal(t, validate.ComponentServices, result.Issues[0].Component)
}
