package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/bootguard/pkg/recovery"
)

var (
	recoverDryRun       bool
	recoverFactoryReset bool
	recoverYes          bool
)

// recoverCmd represents the recover command
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Repair missing or corrupted startup artifacts",
	Long: `Create missing directories and configuration files and replace
corrupted configuration with defaults, backing up the damaged originals
first. With --dry-run only the required actions are listed.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "list required recovery actions without performing them")
	recoverCmd.Flags().BoolVar(&recoverFactoryReset, "factory-reset", false, "reset every configuration file to defaults")
	recoverCmd.Flags().BoolVar(&recoverYes, "yes", false, "skip the factory reset confirmation")
}

func runRecover(cmd *cobra.Command, args []string) error {
	log := newLogger()
	eng, closeStore, err := buildEngine(log, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	if recoverDryRun {
		actions := eng.Recovery().IdentifyRequiredRecoveryActions()
		if len(actions) == 0 {
			fmt.Println("No recovery actions required")
			return nil
		}
		fmt.Println("Required recovery actions:")
		for _, a := range actions {
			fmt.Printf("  - %s\n", a)
		}
		return nil
	}

	if recoverFactoryReset {
		if !recoverYes {
			return fmt.Errorf("factory reset replaces every configuration file; re-run with --yes to confirm")
		}
		result := eng.Recovery().ResetToFactoryDefaults()
		return renderRecovery([]recovery.Result{result})
	}

	results := eng.RunRecovery()
	return renderRecovery(results)
}

func renderRecovery(results []recovery.Result) error {
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

	if len(results) == 0 {
		fmt.Println("Nothing to recover")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Action", "Outcome", "Message")
	failed := 0
	for _, res := range results {
		table.Append(string(res.Action), string(res.Outcome), res.Message)
		if res.Outcome == recovery.OutcomeFailed {
			failed++
		}
	}
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d recovery operation(s) failed", failed)
	}
	return nil
}
