package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/bootguard/pkg/safemode"
)

// safemodeCmd represents the safemode command
var safemodeCmd = &cobra.Command{
	Use:   "safemode",
	Short: "Inspect the safe-mode service catalogs",
	Long: `Show which services stay active in safe mode and which are
disabled. The catalogs are fixed and disjoint; this command documents
what a safe-mode session will and will not run.`,
	RunE: runSafemode,
}

func init() {
	rootCmd.AddCommand(safemodeCmd)
}

func runSafemode(cmd *cobra.Command, args []string) error {
	catalogs := map[string][]string{
		"essential":     safemode.EssentialServices(),
		"non_essential": safemode.NonEssentialServices(),
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(catalogs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}
	if IsYAMLOutput() {
		output, err := yaml.Marshal(catalogs)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(output))
		return nil
	}

	fmt.Println("Essential services (active in safe mode):")
	for _, name := range safemode.EssentialServices() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nNon-essential services (disabled in safe mode):")
	for _, name := range safemode.NonEssentialServices() {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
