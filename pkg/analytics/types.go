package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CrashReport is a structured record of a captured fault, built at
// fault time by the hosting application and appended to the store.
type CrashReport struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	CauseType      string            `json:"cause_type"`
	Message        string            `json:"message"`
	StackSummary   string            `json:"stack_summary"`
	Component      string            `json:"component"`
	AppVersion     string            `json:"app_version"`
	OSDescription  string            `json:"os_description"`
	RuntimeVersion string            `json:"runtime_version"`
	MemoryUsageMB  float64           `json:"memory_usage_mb"`
	Context        map[string]string `json:"context,omitempty"`
}

// RecoveryAttempt records one repair attempt. The action label is
// free-form on purpose: the analytics layer accepts attempts from any
// source, not only the recovery manager's closed action set.
type RecoveryAttempt struct {
	RecoveryAction  string        `json:"recovery_action"`
	WasSuccessful   bool          `json:"was_successful"`
	Component       string        `json:"component"`
	TriggeringIssue string        `json:"triggering_issue"`
	Duration        time.Duration `json:"duration"`
	Timestamp       time.Time     `json:"timestamp"`
}

// SafeModeUsage records one safe-mode session.
type SafeModeUsage struct {
	ID                      string    `json:"id"`
	EntryReason             string    `json:"entry_reason"`
	StartTime               time.Time `json:"start_time"`
	EndTime                 time.Time `json:"end_time"`
	ExitReason              string    `json:"exit_reason"`
	AttemptedNormalStartup  bool      `json:"attempted_normal_startup"`
	NormalStartupSuccessful bool      `json:"normal_startup_successful"`
}

// CrashFrequencyStats is the windowed crash count view.
type CrashFrequencyStats struct {
	TotalCrashes       int            `json:"total_crashes"`
	CrashesLast24Hours int            `json:"crashes_last_24_hours"`
	CrashesLast7Days   int            `json:"crashes_last_7_days"`
	CrashesLast30Days  int            `json:"crashes_last_30_days"`
	CrashesByComponent map[string]int `json:"crashes_by_component"`
}

// PatternCount is one normalized cause/component pairing and how often
// it occurred.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// CorrelatedFailureGroup is a set of distinct causes that occurred
// within the correlation window of each other.
type CorrelatedFailureGroup struct {
	WindowStart time.Time `json:"window_start"`
	Causes      []string  `json:"causes"`
	Count       int       `json:"count"`
}

// FailurePatternAnalysis surfaces recurring and correlated failures.
type FailurePatternAnalysis struct {
	CommonPatterns     []PatternCount           `json:"common_patterns"`
	CorrelatedFailures []CorrelatedFailureGroup `json:"correlated_failures"`
	RecurringIssues    []string                 `json:"recurring_issues"`
}

// RecoverySuccessStats is the attempt list plus the overall rate.
type RecoverySuccessStats struct {
	Attempts           []RecoveryAttempt `json:"attempts"`
	TotalAttempts      int               `json:"total_attempts"`
	SuccessfulAttempts int               `json:"successful_attempts"`
	OverallSuccessRate float64           `json:"overall_success_rate"`
}

// SafeModeStats summarizes safe-mode sessions.
type SafeModeStats struct {
	TotalSessions   int           `json:"total_sessions"`
	OpenSessions    int           `json:"open_sessions"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Report bundles every aggregate view into one snapshot.
type Report struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Frequency   CrashFrequencyStats    `json:"frequency"`
	Patterns    FailurePatternAnalysis `json:"patterns"`
	Recovery    RecoverySuccessStats   `json:"recovery"`
	SafeMode    SafeModeStats          `json:"safe_mode"`
}

// Summary renders the report for human consumption.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crash analytics report (generated %s)\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Crashes: %d total, %d in 24h, %d in 7d, %d in 30d\n",
		r.Frequency.TotalCrashes, r.Frequency.CrashesLast24Hours,
		r.Frequency.CrashesLast7Days, r.Frequency.CrashesLast30Days)

	if len(r.Frequency.CrashesByComponent) > 0 {
		components := make([]string, 0, len(r.Frequency.CrashesByComponent))
		for c := range r.Frequency.CrashesByComponent {
			components = append(components, c)
		}
		sort.Strings(components)
		fmt.Fprintf(&b, "  By component:\n")
		for _, c := range components {
			fmt.Fprintf(&b, "    %s: %d\n", c, r.Frequency.CrashesByComponent[c])
		}
	}

	if len(r.Patterns.CommonPatterns) > 0 {
		fmt.Fprintf(&b, "  Top failure patterns:\n")
		for i, p := range r.Patterns.CommonPatterns {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "    %s (%d)\n", p.Pattern, p.Count)
		}
	}
	if len(r.Patterns.RecurringIssues) > 0 {
		fmt.Fprintf(&b, "  Recurring issues: %s\n", strings.Join(r.Patterns.RecurringIssues, ", "))
	}

	fmt.Fprintf(&b, "  Recovery: %d attempt(s), %.1f%% successful\n",
		r.Recovery.TotalAttempts, r.Recovery.OverallSuccessRate)
	fmt.Fprintf(&b, "  Safe mode: %d session(s), average duration %s\n",
		r.SafeMode.TotalSessions, r.SafeMode.AverageDuration)
	return b.String()
}
