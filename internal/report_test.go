package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateTransitions(t *testing.T) {
	paths := [][]CandidateState{
		{StatePending, StateTranscriptFetching, StateSummarizing, StateWritten, StateRecorded},
		{StatePending, StateTranscriptFetching, StateNoTranscript, StateRecorded},
		{StatePending, StateTranscriptFetching, StateError, StateRecorded},
		{StatePending, StateTranscriptFetching, StateSummarizing, StateError, StateRecorded},
		{StatePending, StateTranscriptFetching, StateBlocked, StateAborted},
		{StatePending, StateListed},
	}
	for _, path := range paths {
		tr := newCandidateTracker("v1")
		for _, next := range path[1:] {
			require.NoError(t, tr.to(next))
		}
		assert.True(t, tr.state.IsTerminal(), "path ends in %s", tr.state)
	}
}

func TestCandidateTransitions_Rejected(t *testing.T) {
	tr := newCandidateTracker("v1")
	err := tr.to(StateRecorded)
	require.ErrorContains(t, err, `"pending" -> "recorded"`)
	assert.Equal(t, StatePending, tr.state)

	assert.False(t, CanTransition(StateBlocked, StateRecorded), "blocked videos are never recorded")
	assert.False(t, CanTransition(StateRecorded, StateTranscriptFetching))
	assert.False(t, StateSummarizing.IsTerminal())
}

func TestRunStatus_ExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, RunSuccess.ExitCode())
	assert.Equal(t, ExitOK, RunPartial.ExitCode())
	assert.Equal(t, ExitOK, RunQuotaExhausted.ExitCode())
	assert.Equal(t, ExitBlocked, RunBlocked.ExitCode())
	assert.Equal(t, ExitFatal, RunFatal.ExitCode())
}

func TestRunReport_Print(t *testing.T) {
	ok := vid("v1", 1)
	failed := vid("v2", 1)
	r := &RunReport{
		Mode:           ModePlaylist,
		Status:         RunQuotaExhausted,
		QuotaUsed:      57,
		QuotaExhausted: true,
		Playlist:       PlaylistInfo{Title: "Later"},
		Counts:         Counts{Summarized: 1, Errored: 1, SkippedDuplicate: 4},
		Results: []VideoResult{
			{Video: ok, Outcome: OutcomeSummarized, NotePath: "/notes/v1.md"},
			{Video: failed, Outcome: OutcomeError, Reason: "summary: timeout"},
		},
	}
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "✓ Video v1 -> /notes/v1.md")
	assert.Contains(t, out, "✗ Video v2: summary: timeout")
	assert.Contains(t, out, "Status: quota-exhausted")
	assert.Contains(t, out, "already processed 4")
	assert.Contains(t, out, "API quota used: 57 units")
	assert.Contains(t, out, "quota was exhausted")
	assert.NotContains(t, out, "DRY RUN")
}

func TestRunReport_PrintDryRunPlaylist(t *testing.T) {
	r := &RunReport{
		Mode:     ModePlaylist,
		DryRun:   true,
		Status:   RunSuccess,
		Playlist: PlaylistInfo{Title: "Later"},
		Results:  []VideoResult{{Video: vid("v1", 1), State: StateListed, Snippet: "hello there"}},
	}
	var buf bytes.Buffer
	r.Print(&buf)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `---- DRY RUN LIST (Playlist: "Later") ----`))
	assert.Contains(t, out, "- Channel | Video v1 | https://www.youtube.com/watch?v=v1")
	assert.Contains(t, out, "  transcript: hello there")
	assert.Contains(t, out, "---- END DRY RUN ----")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b   c", 10))
	assert.Equal(t, "abc…", snippet("abcdef", 3))
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("", &buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	NewLogger("debug", &buf).Debug("detail", "video_id", "v1")
	assert.Contains(t, buf.String(), "video_id=v1")
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mcp.log")
	l, closer, err := NewFileLogger(path, "info")
	require.NoError(t, err)
	l.Info("started", "transport", "stdio")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "transport=stdio")
}

func TestUIManager_Quiet(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUIManagerTo(&buf, false)
	ui.Printf("count: %d\n", 3)
	ui.Verbose("hidden %s\n", "detail")
	bar := ui.NewProgressBar(10, "work")
	bar.Set(5)
	bar.Finish()

	assert.Equal(t, "count: 3\n", buf.String())
}
