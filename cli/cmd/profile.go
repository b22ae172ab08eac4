package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vigil-systems/vigil/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage collector connection profiles",
	Long:  "Profiles store a collector URL and API key in ~/.vigil/config.yaml",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		if url == "" {
			return fmt.Errorf("--url is required")
		}

		if err := cliCfg.SaveProfile(args[0], url, apiKey); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		output.Success("Profile '%s' saved", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(cliCfg)
		}

		table := output.NewTable("NAME", "COLLECTOR URL", "API KEY", "CURRENT")
		for name, profile := range cliCfg.Profiles {
			key := ""
			if profile.APIKey != "" {
				key = "****"
			}
			current := ""
			if name == cliCfg.CurrentProfile {
				current = "*"
			}
			table.AddRow(name, profile.CollectorURL, key, current)
		}
		table.Render()
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cliCfg.RemoveProfile(args[0]); err != nil {
			return err
		}

		output.Success("Profile '%s' removed", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	profileSetCmd.Flags().String("url", "", "collector URL")
	profileSetCmd.Flags().String("api-key", "", "collector API key")
}
