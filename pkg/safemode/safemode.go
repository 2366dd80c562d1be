package safemode

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/bootguard/pkg/clock"
	"github.com/psantana5/bootguard/pkg/issue"
	"github.com/psantana5/bootguard/pkg/logging"
	"github.com/psantana5/bootguard/pkg/registry"
)

// essentialServices are the capabilities that stay active in safe mode.
// Together with nonEssentialServices they form the full, disjoint
// service catalog.
var essentialServices = []string{
	"filesystem",
	"error_handling",
	"exception_logging",
	"storage",
	"note_data",
	"theming",
	"debouncing",
	"dialog",
}

// nonEssentialServices are disabled while safe mode is active.
var nonEssentialServices = []string{
	"cloud_sync",
	"hotkeys",
	"markdown_preview",
	"snippets",
	"export",
	"search",
	"linking",
	"group_tag_management",
	"formatting",
	"encryption",
}

// highRiskPhrases trigger activation regardless of issue severity.
// Matched case-insensitively against issue descriptions.
var highRiskPhrases = []string{
	"service initialization",
	"dependency injection",
	"configuration corruption",
	"resource loading",
	"critical service",
}

// errorThreshold is how many error-severity issues it takes to activate
// safe mode without any critical issue.
const errorThreshold = 3

// Config is the single mutable safe-mode state for a process. While
// Enabled is true, every disable flag and UseDefaultSettings are true:
// safe mode is maximal degradation, never partial.
type Config struct {
	Enabled                 bool                    `json:"enabled"`
	Reason                  string                  `json:"reason"`
	ActivatedAt             time.Time               `json:"activated_at"`
	UseDefaultSettings      bool                    `json:"use_default_settings"`
	DisableCloudSync        bool                    `json:"disable_cloud_sync"`
	DisableHotkeys          bool                    `json:"disable_hotkeys"`
	DisablePreviewRendering bool                    `json:"disable_preview_rendering"`
	DisableTemplatedContent bool                    `json:"disable_templated_content"`
	TriggeringIssues        []issue.ValidationIssue `json:"triggering_issues"`
}

// Status is the read-only projection of the safe-mode state.
type Status struct {
	Active           bool      `json:"active"`
	Reason           string    `json:"reason"`
	ActivatedAt      time.Time `json:"activated_at"`
	SessionID        string    `json:"session_id"`
	DisabledServices []string  `json:"disabled_services"`
}

// Controller is the two-state machine deciding between Normal and Safe.
// One instance per process; all access goes through its lock so readers
// observe either the fully-old or fully-new state.
type Controller struct {
	mu        sync.RWMutex
	cfg       Config
	sessionID string
	clk       clock.Clock
	log       *logging.Logger
}

func NewController(clk clock.Clock, log *logging.Logger) *Controller {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = logging.NewLogger(logging.INFO, false)
	}
	return &Controller{clk: clk, log: log}
}

// ShouldActivate is the pure activation heuristic: any critical issue,
// three or more errors, or any description matching a high-risk phrase.
// It touches no state and may be called before any mutation.
func ShouldActivate(issues []issue.ValidationIssue) bool {
	errorCount := 0
	for _, iss := range issues {
		if iss.Severity == issue.SeverityCritical {
			return true
		}
		if iss.Severity == issue.SeverityError {
			errorCount++
		}
		desc := strings.ToLower(iss.Description)
		for _, phrase := range highRiskPhrases {
			if strings.Contains(desc, phrase) {
				return true
			}
		}
	}
	return errorCount >= errorThreshold
}

// Activate transitions to Safe. Idempotent: re-activation refreshes the
// reason, activation time and triggering issues.
func (c *Controller) Activate(reason string, triggering []issue.ValidationIssue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = Config{
		Enabled:                 true,
		Reason:                  reason,
		ActivatedAt:             c.clk.Now(),
		UseDefaultSettings:      true,
		DisableCloudSync:        true,
		DisableHotkeys:          true,
		DisablePreviewRendering: true,
		DisableTemplatedContent: true,
		TriggeringIssues:        append([]issue.ValidationIssue(nil), triggering...),
	}
	c.sessionID = uuid.New().String()

	c.log.Warn("Safe mode activated", map[string]interface{}{
		"reason": reason, "session_id": c.sessionID, "triggering_issues": len(triggering),
	})
}

// Deactivate returns to Normal. Reports whether a change occurred.
func (c *Controller) Deactivate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return false
	}
	c.cfg = Config{}
	c.sessionID = ""
	c.log.Info("Safe mode deactivated")
	return true
}

// Active reports whether safe mode is currently enabled.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Enabled
}

// Snapshot returns a copy of the current safe-mode configuration.
func (c *Controller) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg := c.cfg
	cfg.TriggeringIssues = append([]issue.ValidationIssue(nil), c.cfg.TriggeringIssues...)
	return cfg
}

// Status returns the reporting projection. The disabled-service list is
// only populated while safe mode is active.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		Active:      c.cfg.Enabled,
		Reason:      c.cfg.Reason,
		ActivatedAt: c.cfg.ActivatedAt,
		SessionID:   c.sessionID,
	}
	if c.cfg.Enabled {
		st.DisabledServices = NonEssentialServices()
	}
	return st
}

// ConfigureMinimalServices unbinds every non-essential registration
// from reg while safe mode is active. In Normal state it is a no-op.
// Returns the names actually unbound.
func (c *Controller) ConfigureMinimalServices(reg registry.Registry) []string {
	if reg == nil || !c.Active() {
		return nil
	}

	var unbound []string
	for _, name := range nonEssentialServices {
		if reg.Unbind(name) {
			unbound = append(unbound, name)
		}
	}
	if len(unbound) > 0 {
		c.log.Info("Unbound non-essential services for safe mode", map[string]interface{}{
			"count": len(unbound),
		})
	}
	return unbound
}

// EssentialServices returns the capabilities that remain active in safe
// mode.
func EssentialServices() []string {
	return append([]string(nil), essentialServices...)
}

// NonEssentialServices returns the capabilities safe mode disables.
func NonEssentialServices() []string {
	return append([]string(nil), nonEssentialServices...)
}
