package classifier

import "strings"

// FaultCategory is the closed set of fault kinds the capturing boundary
// can report. Whatever recovers a panic or collects an OS crash entry is
// responsible for tagging it with one of these before classification.
type FaultCategory int

const (
	CategoryUnknown FaultCategory = iota
	CategoryFileNotFound
	CategoryDirectoryNotFound
	CategoryPermissionDenied
	CategoryParseFailure
	CategoryNilDependency
	CategoryOutOfMemory
)

func (c FaultCategory) String() string {
	switch c {
	case CategoryFileNotFound:
		return "file_not_found"
	case CategoryDirectoryNotFound:
		return "directory_not_found"
	case CategoryPermissionDenied:
		return "permission_denied"
	case CategoryParseFailure:
		return "parse_failure"
	case CategoryNilDependency:
		return "nil_dependency"
	case CategoryOutOfMemory:
		return "out_of_memory"
	default:
		return "unknown"
	}
}

// ParseCategory maps the wire label back to a category. Unrecognized
// labels fall through to CategoryUnknown.
func ParseCategory(s string) FaultCategory {
	for c := CategoryFileNotFound; c <= CategoryOutOfMemory; c++ {
		if c.String() == s {
			return c
		}
	}
	return CategoryUnknown
}

// Fault is a captured runtime fault handed to the classifier.
type Fault struct {
	Category  FaultCategory
	Message   string
	Component string
}

// rule maps a fault category to a cause description and its remediation
// steps. Rules are evaluated in priority order; the first match wins for
// the cause, and every matching rule contributes actions.
type rule struct {
	category FaultCategory
	// messageHints widen the match: a fault tagged CategoryUnknown whose
	// message contains one of these still matches the rule.
	messageHints []string
	cause        string
	actions      []string
}

var rules = []rule{
	{
		category:     CategoryFileNotFound,
		messageHints: []string{"no such file", "file not found", "could not find file"},
		cause:        "A required file is missing",
		actions:      []string{"Create or restore the missing file", "Reset configuration to defaults"},
	},
	{
		category:     CategoryDirectoryNotFound,
		messageHints: []string{"no such directory", "directory not found"},
		cause:        "A required directory is missing",
		actions:      []string{"Create the missing directory"},
	},
	{
		category:     CategoryPermissionDenied,
		messageHints: []string{"permission denied", "access is denied", "access denied"},
		cause:        "Permission or access problem",
		actions:      []string{"Check file and directory permissions", "Run as an elevated user"},
	},
	{
		category:     CategoryParseFailure,
		messageHints: []string{"invalid character", "unexpected end of json", "cannot unmarshal", "parse error"},
		cause:        "Configuration data is corrupted",
		actions:      []string{"Reset configuration to defaults", "Restore configuration from backup"},
	},
	{
		category:     CategoryNilDependency,
		messageHints: []string{"nil pointer", "required service", "not registered"},
		cause:        "A required dependency or service is unavailable",
		actions:      []string{"Verify service registration", "Restart the application"},
	},
	{
		category:     CategoryOutOfMemory,
		messageHints: []string{"out of memory", "cannot allocate"},
		cause:        "Insufficient memory",
		actions:      []string{"Close other applications to free memory", "Restart the application"},
	},
}

// safeModeAction is always the terminal suggestion so callers have a
// guaranteed fallback after everything category-specific.
const safeModeAction = "Start in safe mode with default settings"

const unknownCause = "Unknown failure cause; see the crash report details"

// Classify returns a human-readable cause description for a fault.
// The result is never empty.
func Classify(f Fault) string {
	if r, ok := match(f); ok {
		return r.cause
	}
	return unknownCause
}

// SuggestRecoveryActions returns remediation suggestions for a fault in
// classifier priority order, deduplicated, with the safe-mode fallback
// appended last.
func SuggestRecoveryActions(f Fault) []string {
	seen := make(map[string]bool)
	var actions []string

	appendActions := func(candidates []string) {
		for _, a := range candidates {
			if !seen[a] {
				seen[a] = true
				actions = append(actions, a)
			}
		}
	}

	msg := strings.ToLower(f.Message)
	for _, r := range rules {
		if r.category == f.Category || hintMatches(r, msg) {
			appendActions(r.actions)
		}
	}

	appendActions([]string{safeModeAction})
	return actions
}

// match finds the highest-priority rule for a fault. Category tags take
// precedence; message hints only apply when the tag carries no signal.
func match(f Fault) (rule, bool) {
	for _, r := range rules {
		if r.category == f.Category && f.Category != CategoryUnknown {
			return r, true
		}
	}
	msg := strings.ToLower(f.Message)
	for _, r := range rules {
		if hintMatches(r, msg) {
			return r, true
		}
	}
	return rule{}, false
}

func hintMatches(r rule, lowerMessage string) bool {
	if lowerMessage == "" {
		return false
	}
	for _, hint := range r.messageHints {
		if strings.Contains(lowerMessage, hint) {
			return true
		}
	}
	return false
}
