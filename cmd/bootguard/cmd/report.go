package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var importOSLogHours int

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show crash analytics",
	Long: `Generate the crash analytics report: crash frequency over the
24-hour, 7-day and 30-day windows, recurring and correlated failure
patterns, recovery success rates and safe-mode usage.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().IntVar(&importOSLogHours, "import-oslog", 0, "first import platform crash entries from the last N hours")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, closeStore, err := buildEngine(log, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	if importOSLogHours > 0 {
		imported, err := eng.ImportPlatformCrashes(importOSLogHours)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d platform crash entries\n\n", imported)
	}

	report := eng.Analytics().GenerateReport()

	if IsJSONOutput() {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}
	if IsYAMLOutput() {
		output, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(output))
		return nil
	}

	fmt.Print(report.Summary())

	if len(report.Patterns.CommonPatterns) > 0 {
		fmt.Println()
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Pattern", "Count")
		for _, p := range report.Patterns.CommonPatterns {
			table.Append(p.Pattern, fmt.Sprintf("%d", p.Count))
		}
		table.Render()
	}
	return nil
}
