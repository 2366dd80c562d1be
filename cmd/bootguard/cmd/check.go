package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the full startup protocol",
	Long: `Run the complete launch sequence: validate the environment,
activate safe mode when the issues warrant it, repair what can be
repaired and record the outcome in the analytics history.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, closeStore, err := buildEngine(log, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := eng.RunStartupCheck(context.Background())
	if err != nil {
		return fmt.Errorf("startup check failed: %w", err)
	}

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

	if err := renderValidation(report.Validation); err != nil {
		return err
	}
	if len(report.Recovery) > 0 {
		fmt.Println()
		if err := renderRecovery(report.Recovery); err != nil {
			return err
		}
	}
	if report.SafeModeActivated {
		fmt.Printf("\nSafe mode ACTIVATED: %s\n", report.SafeMode.Reason)
		fmt.Printf("Disabled services: %v\n", report.SafeMode.DisabledServices)
	}
	return nil
}
