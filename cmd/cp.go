package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// cpCmd copies a written note to the system clipboard.
var cpCmd = &cobra.Command{
	Use:   "cp [URL or ID]",
	Short: "Copy the note of a processed video to the clipboard",
	Example: `  # Copy the note for a video
  ytsubs cp "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  ytsubs cp tAP1eZYEuKA

  # Copy the raw transcript instead (fetched live, state untouched)
  ytsubs cp tAP1eZYEuKA --transcript`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := internal.NewApp(config)

		var text string
		if raw, _ := cmd.Flags().GetBool("transcript"); raw {
			res, err := app.Transcript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			text = res.Text()
		} else {
			_, note, err := app.ReadNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			text = string(note)
		}

		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("copying to clipboard: %w", err)
		}

		if !config.Quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard")
		}
		return nil
	},
}

func init() {
	cpCmd.Flags().Bool("transcript", false, "Copy the transcript instead of the note")
	rootCmd.AddCommand(cpCmd)
}
