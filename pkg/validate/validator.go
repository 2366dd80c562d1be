package validate

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/psantana5/bootguard/pkg/catalog"
	"github.com/psantana5/bootguard/pkg/clock"
	"github.com/psantana5/bootguard/pkg/codec"
	"github.com/psantana5/bootguard/pkg/fsys"
	"github.com/psantana5/bootguard/pkg/issue"
	"github.com/psantana5/bootguard/pkg/logging"
	"github.com/psantana5/bootguard/pkg/registry"
)

// Component tags used on results and issues.
const (
	ComponentDirectories   = "directories"
	ComponentConfiguration = "configuration"
	ComponentDependencies  = "dependencies"
	ComponentServices      = "services"
	ComponentResources     = "resources"
)

// Disposable is implemented by services that can report they have
// already been torn down. A disposed service fails validation even
// though it still resolves.
type Disposable interface {
	Disposed() bool
}

// Config wires a Validator. Catalog, FileSystem and Codec are required;
// everything else has a usable zero value.
type Config struct {
	Catalog          *catalog.Catalog
	FileSystem       fsys.FileSystem
	Codec            codec.Codec
	Registry         registry.Registry // optional
	RequiredServices []string
	RequiredTools    []string
	MinGoVersion     string // e.g. "go1.22"
	Clock            clock.Clock
	Logger           *logging.Logger
}

// Validator runs independent environment checks, one per category.
// Checks never fail with an error: every defect, including a panic
// inside a check, is captured as an issue on the result.
type Validator struct {
	cfg Config
}

func New(cfg Config) *Validator {
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
	return &Validator{cfg: cfg}
}

// AllResults is the union of every validation category.
type AllResults struct {
	Results []issue.ValidationResult `json:"results"`
	Passed  bool                     `json:"passed"`
}

// Issues flattens the issues of every category, preserving order.
func (a AllResults) Issues() []issue.ValidationIssue {
	var all []issue.ValidationIssue
	for _, r := range a.Results {
		all = append(all, r.Issues...)
	}
	return all
}

// ValidateAll runs every category and returns the union. Categories are
// independent, so they run concurrently; result order stays fixed.
func (v *Validator) ValidateAll() AllResults {
	checks := []func() issue.ValidationResult{
		v.ValidateDirectories,
		v.ValidateConfiguration,
		v.ValidateDependencies,
		v.ValidateServices,
		v.ValidateResources,
	}

	results := make([]issue.ValidationResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check func() issue.ValidationResult) {
			defer wg.Done()
			results[i] = check()
		}(i, check)
	}
	wg.Wait()

	passed := true
	for _, r := range results {
		if !r.IsValid() {
			passed = false
		}
	}
	return AllResults{Results: results, Passed: passed}
}

// ValidateDirectories checks every required directory, creating missing
// ones on the spot. A directory that cannot be created is critical.
func (v *Validator) ValidateDirectories() issue.ValidationResult {
	return v.run(ComponentDirectories, func(add func(issue.ValidationIssue)) {
		for _, dir := range v.cfg.Catalog.Directories() {
			if v.cfg.FileSystem.DirExists(dir) {
				continue
			}
			if err := v.cfg.FileSystem.MkdirAll(dir); err != nil {
				action := "Create the directory manually"
				if fsys.IsPermission(err) {
					action = "Check directory permissions or run as an elevated user"
				}
				add(issue.ValidationIssue{
					Component:       ComponentDirectories,
					Severity:        issue.SeverityCritical,
					Description:     fmt.Sprintf("Required directory %s is missing and could not be created: %v", dir, err),
					SuggestedAction: action,
				})
				continue
			}
			add(issue.ValidationIssue{
				Component:       ComponentDirectories,
				Severity:        issue.SeverityWarning,
				Description:     fmt.Sprintf("Required directory %s was missing and has been created", dir),
				SuggestedAction: "No action needed; directory was created automatically",
			})
		}
	})
}

// ValidateConfiguration checks that every known configuration file
// exists and parses. Missing files are recoverable; corrupted ones are
// errors, critical when the file is safety-critical.
func (v *Validator) ValidateConfiguration() issue.ValidationResult {
	return v.run(ComponentConfiguration, func(add func(issue.ValidationIssue)) {
		for _, cf := range v.cfg.Catalog.ConfigFiles() {
			if !v.cfg.FileSystem.FileExists(cf.Path) {
				add(issue.ValidationIssue{
					Component:       ComponentConfiguration,
					Severity:        issue.SeverityWarning,
					Description:     fmt.Sprintf("Configuration file %s is missing", cf.Path),
					SuggestedAction: "Run recovery to generate a default configuration",
				})
				continue
			}

			content, err := v.cfg.FileSystem.ReadFile(cf.Path)
			if err != nil {
				sev := issue.SeverityError
				action := "Check the file and retry"
				if fsys.IsPermission(err) {
					sev = issue.SeverityCritical
					action = "Check file permissions or run as an elevated user"
				}
				add(issue.ValidationIssue{
					Component:       ComponentConfiguration,
					Severity:        sev,
					Description:     fmt.Sprintf("Configuration file %s could not be read: %v", cf.Path, err),
					SuggestedAction: action,
				})
				continue
			}

			if err := v.cfg.Codec.Validate(content); err != nil {
				sev := issue.SeverityError
				if cf.Critical {
					sev = issue.SeverityCritical
				}
				add(issue.ValidationIssue{
					Component:       ComponentConfiguration,
					Severity:        sev,
					Description:     fmt.Sprintf("Configuration corruption detected in %s: %v", cf.Path, err),
					SuggestedAction: "Run recovery to back up and replace the corrupted file",
				})
			}
		}
	})
}

// ValidateDependencies verifies the runtime version and the presence of
// required external tools.
func (v *Validator) ValidateDependencies() issue.ValidationResult {
	return v.run(ComponentDependencies, func(add func(issue.ValidationIssue)) {
		if v.cfg.MinGoVersion != "" && !runtimeAtLeast(runtime.Version(), v.cfg.MinGoVersion) {
			add(issue.ValidationIssue{
				Component:       ComponentDependencies,
				Severity:        issue.SeverityError,
				Description:     fmt.Sprintf("Runtime version %s is below the minimum %s", runtime.Version(), v.cfg.MinGoVersion),
				SuggestedAction: "Rebuild with a supported toolchain",
			})
		}

		for _, tool := range v.cfg.RequiredTools {
			if _, err := exec.LookPath(tool); err != nil {
				add(issue.ValidationIssue{
					Component:       ComponentDependencies,
					Severity:        issue.SeverityError,
					Description:     fmt.Sprintf("Required external component %q was not found in PATH", tool),
					SuggestedAction: fmt.Sprintf("Install %s or adjust PATH", tool),
				})
			}
		}
	})
}

// ValidateServices checks that each required capability resolves in the
// registry. Without a registry, validation is skipped informationally.
func (v *Validator) ValidateServices() issue.ValidationResult {
	return v.run(ComponentServices, func(add func(issue.ValidationIssue)) {
		if v.cfg.Registry == nil {
			add(issue.ValidationIssue{
				Component:       ComponentServices,
				Severity:        issue.SeverityInformation,
				Description:     "No service registry configured; service validation skipped",
				SuggestedAction: "Wire a service registry to enable service validation",
			})
			return
		}

		for _, name := range v.cfg.RequiredServices {
			svc := v.cfg.Registry.Resolve(name)
			if svc == nil {
				add(issue.ValidationIssue{
					Component:       ComponentServices,
					Severity:        issue.SeverityError,
					Description:     fmt.Sprintf("Critical service %q could not be resolved", name),
					SuggestedAction: "Check service initialization order and registration",
				})
				continue
			}
			if d, ok := svc.(Disposable); ok && d.Disposed() {
				add(issue.ValidationIssue{
					Component:       ComponentServices,
					Severity:        issue.SeverityError,
					Description:     fmt.Sprintf("Service %q resolves but has already been torn down", name),
					SuggestedAction: "Restart the application to reinitialize services",
				})
			}
		}
	})
}

// ValidateResources verifies bundled resources load. Resource defects
// never block startup, so nothing here exceeds warning severity.
func (v *Validator) ValidateResources() issue.ValidationResult {
	return v.run(ComponentResources, func(add func(issue.ValidationIssue)) {
		for _, path := range v.cfg.Catalog.ResourceFiles() {
			if !v.cfg.FileSystem.FileExists(path) {
				add(issue.ValidationIssue{
					Component:       ComponentResources,
					Severity:        issue.SeverityWarning,
					Description:     fmt.Sprintf("Bundled resource %s is missing", path),
					SuggestedAction: "Reinstall the application to restore bundled resources",
				})
				continue
			}
			content, err := v.cfg.FileSystem.ReadFile(path)
			if err == nil {
				err = v.cfg.Codec.Validate(content)
			}
			if err != nil {
				add(issue.ValidationIssue{
					Component:       ComponentResources,
					Severity:        issue.SeverityWarning,
					Description:     fmt.Sprintf("Resource loading failed for %s: %v", path, err),
					SuggestedAction: "Reinstall the application to restore bundled resources",
				})
			}
		}
	})
}

// run executes one category body, timing it and converting a panic
// inside the check into a critical issue instead of crashing the
// validator.
func (v *Validator) run(component string, body func(add func(issue.ValidationIssue))) (result issue.ValidationResult) {
	startedAt := v.cfg.Clock.Now()
	result = issue.ValidationResult{
		Component: component,
		StartedAt: startedAt,
	}
	add := func(iss issue.ValidationIssue) {
		result.Issues = append(result.Issues, iss)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				v.cfg.Logger.Error("Validation check panicked", map[string]interface{}{
					"component": component, "panic": fmt.Sprint(r),
				})
				add(issue.ValidationIssue{
					Component:       component,
					Severity:        issue.SeverityCritical,
					Description:     fmt.Sprintf("Validation check failed internally: %v", r),
					SuggestedAction: "Report this failure; the category could not be validated",
				})
			}
		}()
		body(add)
	}()

	result.Duration = v.cfg.Clock.Now().Sub(startedAt)
	if len(result.Issues) > 0 {
		v.cfg.Logger.Warn(fmt.Sprintf("Validation found %d issue(s)", len(result.Issues)),
			map[string]interface{}{"component": component})
	}
	return result
}

// runtimeAtLeast compares Go runtime version strings like "go1.24.1".
// Unparseable versions (devel builds) are treated as compatible.
func runtimeAtLeast(current, minimum string) bool {
	cur, ok := parseGoVersion(current)
	if !ok {
		return true
	}
	min, ok := parseGoVersion(minimum)
	if !ok {
		return true
	}
	if cur[0] != min[0] {
		return cur[0] > min[0]
	}
	if cur[1] != min[1] {
		return cur[1] > min[1]
	}
	return cur[2] >= min[2]
}

func parseGoVersion(v string) ([3]int, bool) {
	v = strings.TrimPrefix(v, "go")
	parts := strings.Split(v, ".")
	var out [3]int
	if len(parts) < 2 {
		return out, false
	}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
