package internal

import (
	"fmt"
	"io"
	"strings"
)

// RunStatus is the overall result of a run.
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunPartial        RunStatus = "partial"
	RunQuotaExhausted RunStatus = "quota-exhausted"
	RunBlocked        RunStatus = "blocked"
	RunFatal          RunStatus = "fatal"
)

// Exit codes of the run command.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitBlocked = 3
)

// ExitCode maps a status to the process exit code. Partial and
// quota-limited runs are normal for a scheduled job and exit cleanly.
func (s RunStatus) ExitCode() int {
	switch s {
	case RunBlocked:
		return ExitBlocked
	case RunFatal:
		return ExitFatal
	default:
		return ExitOK
	}
}

// Counts tallies what happened to candidates.
type Counts struct {
	Summarized       int `json:"summarized"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	NoTranscript     int `json:"no_transcript"`
	Blocked          int `json:"blocked"`
	Errored          int `json:"errored"`
	FilteredAge      int `json:"filtered_age"`
	FilteredShorts   int `json:"filtered_shorts"`
	FilteredWatched  int `json:"filtered_watched"`
	Listed           int `json:"listed"`
	NotAttempted     int `json:"not_attempted"`
}

// VideoResult is the per-candidate line of a report.
type VideoResult struct {
	Video    VideoCandidate
	State    CandidateState
	Outcome  Outcome
	Reason   string
	NotePath string
	Snippet  string
}

// RunReport summarizes one run for the user and for the exit code.
type RunReport struct {
	Mode           ModeKind
	DryRun         bool
	Status         RunStatus
	Counts         Counts
	QuotaUsed      int
	QuotaExhausted bool
	Interrupted    bool
	Playlist       PlaylistInfo
	Results        []VideoResult
	Err            error
}

const blockedHint = `Transcript requests are being blocked for this network path.
Troubleshooting:
  - wait a few hours before the next run; blocks are usually temporary
  - export browser cookies for youtube.com and set cookies_file
  - route traffic through a residential proxy with HTTPS_PROXY
  - run "ytsubs check-block" to test access without touching state`

// Print writes a human readable report.
func (r *RunReport) Print(w io.Writer) {
	if r.DryRun {
		fmt.Fprintf(w, "---- DRY RUN LIST (%s) ----\n", r.contextLabel())
		for _, res := range r.Results {
			fmt.Fprintf(w, "- %s | %s | %s\n", res.Video.DisplayChannel(), res.Video.Title, res.Video.URL())
			if res.Snippet != "" {
				fmt.Fprintf(w, "  transcript: %s\n", res.Snippet)
			}
		}
		fmt.Fprintln(w, "---- END DRY RUN ----")
	} else {
		for _, res := range r.Results {
			switch res.Outcome {
			case OutcomeSummarized:
				fmt.Fprintf(w, "✓ %s -> %s\n", res.Video.Title, res.NotePath)
			case OutcomeNoTranscript:
				fmt.Fprintf(w, "- %s: no transcript (%s)\n", res.Video.Title, res.Reason)
			case OutcomeError:
				fmt.Fprintf(w, "✗ %s: %s\n", res.Video.Title, res.Reason)
			}
		}
	}

	c := r.Counts
	fmt.Fprintf(w, "\nStatus: %s\n", r.Status)
	fmt.Fprintf(w, "Summarized: %d  No transcript: %d  Errors: %d  Blocked: %d  Not attempted: %d\n",
		c.Summarized, c.NoTranscript, c.Errored, c.Blocked, c.NotAttempted)
	fmt.Fprintf(w, "Filtered: age %d, shorts %d, already processed %d, watched %d\n",
		c.FilteredAge, c.FilteredShorts, c.SkippedDuplicate, c.FilteredWatched)
	fmt.Fprintf(w, "API quota used: %d units\n", r.QuotaUsed)

	if r.QuotaExhausted {
		fmt.Fprintln(w, "YouTube API quota was exhausted; remaining videos will be picked up after the daily reset.")
	}
	if r.Interrupted {
		fmt.Fprintln(w, "Run was interrupted; unprocessed videos will be retried next run.")
	}
	if r.Status == RunBlocked {
		fmt.Fprintln(w)
		fmt.Fprintln(w, blockedHint)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "Error: %v\n", r.Err)
	}
}

func (r *RunReport) contextLabel() string {
	switch r.Mode {
	case ModePlaylist:
		return fmt.Sprintf("Playlist: %q", r.Playlist.Title)
	case ModeExplicit:
		return "Explicit URLs"
	default:
		return "Subscriptions"
	}
}

// snippet shortens transcript text for dry-run listings.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "…"
}
