package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/bootguard/pkg/validate"
)

var validateStrict bool

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the startup environment",
	Long: `Run every validation category (directories, configuration,
dependencies, services, resources) against the guarded data directory
and report the issues found. Missing directories are created on the
spot; nothing else is modified.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "exit non-zero on any issue, not only validation failure")
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, closeStore, err := buildEngine(log, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	results := eng.Validator().ValidateAll()

	if err := renderValidation(results); err != nil {
		return err
	}

	if !results.Passed {
		return fmt.Errorf("validation failed: critical issues found")
	}
	if validateStrict && len(results.Issues()) > 0 {
		return fmt.Errorf("validation found %d issue(s)", len(results.Issues()))
	}
	return nil
}

func renderValidation(results validate.AllResults) error {
	if IsJSONOutput() {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}
	if IsYAMLOutput() {
		output, err := yaml.Marshal(results)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(output))
		return nil
	}

	issues := results.Issues()
	if len(issues) == 0 {
		fmt.Println("All validation checks passed")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Component", "Severity", "Description", "Suggested Action")
	for _, iss := range issues {
		table.Append(iss.Component, iss.Severity.String(), iss.Description, iss.SuggestedAction)
	}
	table.Render()

	status := "PASSED"
	if !results.Passed {
		status = "FAILED"
	}
	fmt.Printf("\nValidation %s: %d issue(s) across %d categories\n", status, len(issues), len(results.Results))
	return nil
}
