package issue

import "testing"

func TestSeverity_Ordering(t *testing.T) {
	if !(SeverityInformation < SeverityWarning &&
		SeverityWarning < SeverityError &&
		SeverityError < SeverityCritical) {
		t.Error("Severity levels must rank information < warning < error < critical")
	}
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityInformation, "information"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestValidationResult_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		issues []ValidationIssue
		want   bool
	}{
		{"no issues", nil, true},
		{"warnings only", []ValidationIssue{
			{Severity: SeverityWarning},
			{Severity: SeverityWarning},
		}, true},
		{"errors tolerated", []ValidationIssue{
			{Severity: SeverityError},
		}, true},
		{"critical fails", []ValidationIssue{
			{Severity: SeverityWarning},
			{Severity: SeverityCritical},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidationResult{Component: "test", Issues: tt.issues}
			if got := r.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCountBySeverity(t *testing.T) {
	issues := []ValidationIssue{
		{Severity: SeverityWarning},
		{Severity: SeverityError},
		{Severity: SeverityError},
		{Severity: SeverityCritical},
	}

	if got := CountBySeverity(issues, SeverityError); got != 2 {
		t.Errorf("Expected 2 errors, got %d", got)
	}
	if got := CountBySeverity(issues, SeverityInformation); got != 0 {
		t.Errorf("Expected 0 information issues, got %d", got)
	}
}

func TestHighestSeverity(t *testing.T) {
	if got := HighestSeverity(nil); got != SeverityInformation {
		t.Errorf("Empty list should report information, got %s", got)
	}

	issues := []ValidationIssue{
		{Severity: SeverityWarning},
		{Severity: SeverityCritical},
		{Severity: SeverityError},
	}
	if got := HighestSeverity(issues); got != SeverityCritical {
		t.Errorf("Expected critical, got %s", got)
	}
}
