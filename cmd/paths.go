package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show paths used by the application",
	Example: `  # Show all application paths
  ytsubs paths`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Config directory: %s\n", config.ConfigDir)
		fmt.Fprintf(out, "Data directory: %s\n", config.DataDir)
		fmt.Fprintf(out, "Cache directory: %s\n", config.CacheDir)
		fmt.Fprintf(out, "Notes directory: %s\n", config.OutputDir)
		fmt.Fprintf(out, "State file (%s): %s\n", config.StateBackend, config.StateFile)
		fmt.Fprintf(out, "Client secret: %s\n", config.ClientSecretFile)
		fmt.Fprintf(out, "OAuth token: %s\n", config.TokenFile)
		if used := config.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "Config file in use: %s\n", used)
		}
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}
