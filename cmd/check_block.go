package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// checkBlockCmd checks whether transcript requests are blocked
var checkBlockCmd = &cobra.Command{
	Use:   "check-block [URL or ID]",
	Short: "Check whether transcript requests are blocked from this network",
	Long: `Fetch one transcript and report whether the request was blocked. Nothing is
written to state. Exits 3 when blocked so it can gate a scheduled run.`,
	Example: `  ytsubs check-block
  ytsubs check-block tAP1eZYEuKA`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := internal.DefaultCheckVideo
		if len(args) == 1 {
			ref = args[0]
		}

		app := internal.NewApp(config)
		res, err := app.CheckBlock(cmd.Context(), ref)
		out := cmd.OutOrStdout()
		switch {
		case err != nil:
			return fmt.Errorf("transcript check failed (not a block): %w", err)
		case res.Status == internal.TranscriptBlocked:
			fmt.Fprintf(out, "BLOCKED: %s\n", res.Reason)
			fmt.Fprintln(out, "Wait a few hours, use cookies_file, or run from a different network.")
			return &exitError{code: internal.ExitBlocked}
		case res.Status == internal.TranscriptUnavailable:
			fmt.Fprintf(out, "Not blocked. Video %s has no transcript (%s).\n", res.VideoID, res.Reason)
		default:
			fmt.Fprintf(out, "Not blocked. Fetched %d caption segments (%s).\n", len(res.Segments), res.Language)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkBlockCmd)
}
