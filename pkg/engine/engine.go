package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/bootguard/internal/metrics"
	"github.com/psantana5/bootguard/pkg/analytics"
	"github.com/psantana5/bootguard/pkg/catalog"
	"github.com/psantana5/bootguard/pkg/classifier"
	"github.com/psantana5/bootguard/pkg/clock"
	"github.com/psantana5/bootguard/pkg/codec"
	"github.com/psantana5/bootguard/pkg/crashlog"
	"github.com/psantana5/bootguard/pkg/fsys"
	"github.com/psantana5/bootguard/pkg/issue"
	"github.com/psantana5/bootguard/pkg/logging"
	"github.com/psantana5/bootguard/pkg/recovery"
	"github.com/psantana5/bootguard/pkg/registry"
	"github.com/psantana5/bootguard/pkg/safemode"
	"github.com/psantana5/bootguard/pkg/validate"
)

// Options wires an Engine. BaseDir is required; everything else has a
// usable default.
type Options struct {
	BaseDir          string
	AppVersion       string
	Registry         registry.Registry // optional
	RequiredServices []string
	RequiredTools    []string
	MinGoVersion     string
	CrashLogDir      string
	Backend          analytics.Backend // optional persistence
	FileSystem       fsys.FileSystem
	Codec            codec.Codec
	Clock            clock.Clock
	Logger           *logging.Logger
	Metrics          *metrics.Metrics
}

// Engine drives the launch protocol: validate the environment, decide
// on safe mode, repair what can be repaired and record the history.
type Engine struct {
	opts       Options
	cat        *catalog.Catalog
	validator  *validate.Validator
	recoverer  *recovery.Manager
	controller *safemode.Controller
	store      *analytics.Store
	reader     crashlog.Reader
	clk        clock.Clock
	log        *logging.Logger
	met        *metrics.Metrics

	sessionStart time.Time
	sessionID    string
}

func New(opts Options) *Engine {
	if opts.FileSystem == nil {
		opts.FileSystem = fsys.OS{}
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSON{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.INFO, false)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	cat := catalog.New(opts.BaseDir)
	e := &Engine{
		opts: opts,
		cat:  cat,
		validator: validate.New(validate.Config{
			Catalog:          cat,
			FileSystem:       opts.FileSystem,
			Codec:            opts.Codec,
			Registry:         opts.Registry,
			RequiredServices: opts.RequiredServices,
			RequiredTools:    opts.RequiredTools,
			MinGoVersion:     opts.MinGoVersion,
			Clock:            opts.Clock,
			Logger:           opts.Logger,
		}),
		recoverer: recovery.NewManager(recovery.Config{
			Catalog:    cat,
			FileSystem: opts.FileSystem,
			Codec:      opts.Codec,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		}),
		controller: safemode.NewController(opts.Clock, opts.Logger),
		store:      analytics.NewStore(opts.Backend, opts.Clock, opts.Logger),
		reader:     crashlog.NewDirReader(opts.CrashLogDir, opts.Clock),
		clk:        opts.Clock,
		log:        opts.Logger,
		met:        opts.Metrics,
	}
	return e
}

// Catalog exposes the engine's artifact catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Validator exposes the environment validator.
func (e *Engine) Validator() *validate.Validator { return e.validator }

// Recovery exposes the recovery manager.
func (e *Engine) Recovery() *recovery.Manager { return e.recoverer }

// SafeMode exposes the safe-mode controller.
func (e *Engine) SafeMode() *safemode.Controller { return e.controller }

// Analytics exposes the crash analytics store.
func (e *Engine) Analytics() *analytics.Store { return e.store }

// StartupReport is the outcome of one launch check.
type StartupReport struct {
	Validation        validate.AllResults `json:"validation"`
	Recovery          []recovery.Result   `json:"recovery,omitempty"`
	SafeModeActivated bool                `json:"safe_mode_activated"`
	SafeMode          safemode.Status     `json:"safe_mode"`
}

// RunStartupCheck executes the launch protocol: validate every
// category, activate safe mode when the issues warrant it, repair the
// catalog when any defect was found, and record the outcomes.
func (e *Engine) RunStartupCheck(ctx context.Context) (*StartupReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &StartupReport{}
	report.Validation = e.validator.ValidateAll()
	issues := report.Validation.Issues()

	for _, iss := range issues {
		e.met.ValidationIssues.WithLabelValues(iss.Component, iss.Severity.String()).Inc()
	}

	if safemode.ShouldActivate(issues) {
		reason := activationReason(issues)
		e.controller.Activate(reason, issues)
		e.controller.ConfigureMinimalServices(e.opts.Registry)
		e.met.SafeModeActive.Set(1)
		report.SafeModeActivated = true

		e.sessionStart = e.clk.Now()
		e.sessionID = e.controller.Status().SessionID
		if err := e.store.RecordSafeModeUsage(&analytics.SafeModeUsage{
			ID:          e.sessionID,
			EntryReason: reason,
			StartTime:   e.sessionStart,
		}); err != nil {
			e.log.Error("Failed to record safe mode session", map[string]interface{}{"error": err.Error()})
		}
	}

	// Information-level notes (skipped categories and the like) are not
	// defects; only warnings and above warrant a repair pass.
	if issue.HighestSeverity(issues) > issue.SeverityInformation {
		report.Recovery = e.RunRecovery()
	}

	report.SafeMode = e.controller.Status()

	result := "passed"
	if !report.Validation.Passed {
		result = "failed"
	}
	e.met.StartupChecks.WithLabelValues(result).Inc()
	return report, nil
}

// RunRecovery performs a comprehensive catalog repair and records every
// attempt that actually changed something (or tried to and failed).
func (e *Engine) RunRecovery() []recovery.Result {
	start := e.clk.Now()
	results := e.recoverer.PerformComprehensiveRecovery()
	duration := e.clk.Now().Sub(start)

	for _, res := range results {
		e.met.RecoveryResults.WithLabelValues(string(res.Action), string(res.Outcome)).Inc()
		if res.Outcome == recovery.OutcomeNoActionNeeded {
			continue
		}
		attempt := &analytics.RecoveryAttempt{
			RecoveryAction: string(res.Action),
			WasSuccessful:  res.Succeeded,
			Component:      "recovery",
			Duration:       duration / time.Duration(len(results)),
			Timestamp:      res.Timestamp,
		}
		if err := e.store.RecordRecoveryAttempt(attempt); err != nil {
			e.log.Error("Failed to record recovery attempt", map[string]interface{}{"error": err.Error()})
		}
	}
	return results
}

// ExitSafeMode deactivates safe mode and closes the recorded session.
func (e *Engine) ExitSafeMode(exitReason string, attemptedNormal, normalSuccessful bool) bool {
	changed := e.controller.Deactivate()
	if !changed {
		return false
	}
	e.met.SafeModeActive.Set(0)

	usage := &analytics.SafeModeUsage{
		ID:                      e.sessionID,
		StartTime:               e.sessionStart,
		EndTime:                 e.clk.Now(),
		ExitReason:              exitReason,
		AttemptedNormalStartup:  attemptedNormal,
		NormalStartupSuccessful: normalSuccessful,
	}
	if err := e.store.RecordSafeModeUsage(usage); err != nil {
		e.log.Error("Failed to record safe mode exit", map[string]interface{}{"error": err.Error()})
	}
	return true
}

// HandleFault classifies a captured fault, builds a crash report with
// ambient diagnostics and appends it to the analytics store. The report
// is returned for the host to surface; faults are never re-thrown.
func (e *Engine) HandleFault(fault classifier.Fault) *analytics.CrashReport {
	report := &analytics.CrashReport{
		Timestamp:      e.clk.Now(),
		CauseType:      fault.Category.String(),
		Message:        classifier.Classify(fault),
		StackSummary:   fault.Message,
		Component:      fault.Component,
		AppVersion:     e.opts.AppVersion,
		OSDescription:  osDescription(),
		RuntimeVersion: runtime.Version(),
		MemoryUsageMB:  processMemoryMB(),
		Context:        ambientContext(),
	}

	if err := e.store.RecordCrash(report); err != nil {
		e.log.Error("Failed to record crash report", map[string]interface{}{"error": err.Error()})
		return report
	}
	e.met.CrashesRecorded.Inc()

	e.log.Warn("Crash recorded", map[string]interface{}{
		"cause": report.CauseType, "component": report.Component,
	})
	return report
}

// SuggestActions returns remediation suggestions for a captured fault.
func (e *Engine) SuggestActions(fault classifier.Fault) []string {
	return classifier.SuggestRecoveryActions(fault)
}

// ImportPlatformCrashes reads best-effort OS crash entries from the
// last hoursBack hours and records them as crash reports. Returns how
// many were imported.
func (e *Engine) ImportPlatformCrashes(hoursBack int) (int, error) {
	entries, err := e.reader.ReadEntries(hoursBack)
	if err != nil {
		return 0, fmt.Errorf("failed to read platform crash log: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		fault := classifier.Fault{
			Category:  classifier.CategoryUnknown,
			Message:   entry.Message,
			Component: "platform/" + entry.Source,
		}
		report := &analytics.CrashReport{
			Timestamp:      entry.Timestamp,
			CauseType:      "os_crash",
			Message:        classifier.Classify(fault),
			StackSummary:   entry.Message,
			Component:      fault.Component,
			AppVersion:     e.opts.AppVersion,
			OSDescription:  osDescription(),
			RuntimeVersion: runtime.Version(),
		}
		if err := e.store.RecordCrash(report); err != nil {
			e.log.Error("Failed to import platform crash", map[string]interface{}{"error": err.Error()})
			continue
		}
		e.met.CrashesRecorded.Inc()
		imported++
	}
	return imported, nil
}

// activationReason summarizes why safe mode triggered.
func activationReason(issues []issue.ValidationIssue) string {
	criticals := issue.CountBySeverity(issues, issue.SeverityCritical)
	errors := issue.CountBySeverity(issues, issue.SeverityError)
	switch {
	case criticals > 0:
		return fmt.Sprintf("Startup validation found %d critical issue(s)", criticals)
	case errors >= 3:
		return fmt.Sprintf("Startup validation found %d error issue(s)", errors)
	default:
		return "Startup validation matched a high-risk failure pattern"
	}
}

// osDescription builds a one-line OS summary, degrading to GOOS when
// the host probe fails.
func osDescription() string {
	info, err := host.Info()
	if err != nil {
		return runtime.GOOS
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelVersion))
}

func processMemoryMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1024 * 1024)
}

// ambientContext captures system memory pressure at fault time.
func ambientContext() map[string]string {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	return map[string]string{
		"system_memory_used_percent": fmt.Sprintf("%.1f", vm.UsedPercent),
		"system_memory_total_mb":     fmt.Sprintf("%d", vm.Total/(1024*1024)),
	}
}
