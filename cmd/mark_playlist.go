package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// markPlaylistCmd seeds state with the current contents of a playlist
var markPlaylistCmd = &cobra.Command{
	Use:   "mark-playlist NAME",
	Short: "Mark every video currently in a playlist as already processed",
	Long: `Record every video currently in the playlist as seeded, without fetching
transcripts or writing notes. Later runs with --playlist then only pick up
videos added after this point.`,
	Example: `  ytsubs mark-playlist "Watch later queue"
  ytsubs mark-playlist PLxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := internal.NewApp(config)
		res, err := app.SeedPlaylist(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Playlist: %s (%s)\n", res.Playlist.Title, res.Playlist.ID)
		fmt.Fprintf(out, "Marked %d videos as processed, %d were already in state\n", res.Seeded, res.AlreadyPresent)
		if res.QuotaExhausted {
			fmt.Fprintln(out, "YouTube API quota ran out before the whole playlist was listed; run again after the daily reset.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(markPlaylistCmd)
}
