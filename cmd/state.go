package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// stateCmd groups state inspection commands
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or edit the processed-video state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed videos, most recent first",
	Example: `  ytsubs state list
  ytsubs state list --outcome error`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var outcome internal.Outcome
		if s, _ := cmd.Flags().GetString("outcome"); s != "" {
			o, err := internal.ParseOutcome(s)
			if err != nil {
				return err
			}
			outcome = o
		}

		app := internal.NewApp(config)
		records, err := app.ListRecords(cmd.Context(), outcome)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VIDEO\tOUTCOME\tPROCESSED\tATTEMPTS\tTITLE / REASON")
		for _, r := range records {
			detail := r.Title
			if r.Reason != "" {
				detail = fmt.Sprintf("%s (%s)", r.Title, r.Reason)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				r.VideoID, r.Outcome, r.ProcessedAt.Local().Format("2006-01-02 15:04"), r.Attempts, detail)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d records\n", len(records))
		return nil
	},
}

var statePurgeCmd = &cobra.Command{
	Use:   "purge URL_OR_ID...",
	Short: "Forget videos so the next run processes them again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := internal.NewApp(config)
		n, err := app.PurgeRecords(cmd.Context(), args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d of %d records\n", n, len(args))
		return nil
	},
}

func init() {
	stateListCmd.Flags().String("outcome", "", "Only show one outcome (summarized, no_transcript, error, seeded)")
	stateCmd.AddCommand(stateListCmd, statePurgeCmd)
	rootCmd.AddCommand(stateCmd)
}
