package cmd

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/streamrec/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage streamrec configuration profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Print the configuration of the selected profile after merging it over the
default profile and the built-in defaults. Keys the profile does not set
itself are listed as inherited.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		w := cmd.OutOrStdout()
		source := cfgFile
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(w, "# source: %s\n", source)
		fmt.Fprintf(w, "# profile: %s\n", cfg.Profile)
		if len(cfg.Inheritance) > 0 {
			fmt.Fprintf(w, "# inherited: %s\n", strings.Join(cfg.Inheritance, ", "))
		}
		fmt.Fprint(w, string(out))
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configuration profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfgFile == "" {
			fmt.Fprintln(w, "No config file found, using built-in defaults")
			return nil
		}

		root, err := config.ReadRoot(cfgFile)
		if err != nil {
			return err
		}
		names, err := config.ProfileNames(cfgFile)
		if err != nil {
			return err
		}

		for _, name := range names {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			suffix := ""
			if strings.EqualFold(name, root.ActiveProfile) {
				suffix = " (active)"
			}
			fmt.Fprintf(w, "%s %s%s\n", marker, name, suffix)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use PROFILE",
	Short: "Set the active profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveProfile(cfgFile, args[0]); err != nil {
			return fmt.Errorf("failed to switch profile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active profile set to '%s' in %s\n", strings.ToLower(args[0]), cfgFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configUseCmd)
}
