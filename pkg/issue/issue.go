package issue

import "time"

// Severity ranks how serious a validation issue is.
// Ordering matters: higher values indicate more severe defects.
type Severity int

const (
	SeverityInformation Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInformation:
		return "information"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ValidationIssue is a single detected environment defect.
// Issues are created by validator checks and never mutated afterward.
type ValidationIssue struct {
	Component       string   `json:"component"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	SuggestedAction string   `json:"suggested_action"`
}

// ValidationResult holds the outcome of one validation category.
type ValidationResult struct {
	Component string            `json:"component"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Issues    []ValidationIssue `json:"issues"`
}

// IsValid reports whether the category passed. Warnings and errors are
// tolerated at startup; only critical issues fail a category.
func (r ValidationResult) IsValid() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// CountBySeverity tallies issues at the given severity.
func CountBySeverity(issues []ValidationIssue, sev Severity) int {
	count := 0
	for _, iss := range issues {
		if iss.Severity == sev {
			count++
		}
	}
	return count
}

// HighestSeverity returns the most severe level present in issues.
// Returns SeverityInformation for an empty list.
func HighestSeverity(issues []ValidationIssue) Severity {
	highest := SeverityInformation
	for _, iss := range issues {
		if iss.Severity > highest {
			highest = iss.Severity
		}
	}
	return highest
}
