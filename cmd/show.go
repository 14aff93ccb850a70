package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// showCmd renders a written note in the terminal
var showCmd = &cobra.Command{
	Use:   "show [URL or ID]",
	Short: "Render the note of a processed video in the terminal",
	Example: `  ytsubs show tAP1eZYEuKA
  ytsubs show tAP1eZYEuKA --raw`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := internal.NewApp(config)
		_, note, err := app.ReadNote(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			_, err := cmd.OutOrStdout().Write(note)
			return err
		}

		rendered, err := internal.RenderMarkdown(internal.StripFrontMatter(note))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("raw", false, "Print the Markdown source including front matter")
	rootCmd.AddCommand(showCmd)
}
