package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appFixture struct {
	config  *Config
	api     *fakeDataAPI
	state   *MemoryStore
	fetcher *fakeFetcher
	writer  *memoryWriter
}

func newAppFixture(t *testing.T, records ...ProcessedRecord) *appFixture {
	t.Helper()
	dir := t.TempDir()
	return &appFixture{
		config: &Config{
			MaxVideos:        10,
			MaxAgeDays:       14,
			PerChannelLimit:  3,
			ShortsMaxSeconds: 180,
			PlaylistMaxItems: 200,
			MaxErrorAttempts: 3,
			StateBackend:     "json",
			StateFile:        filepath.Join(dir, "state.json"),
			OutputDir:        filepath.Join(dir, "notes"),
			ConfigDir:        dir,
		},
		api:     newFakeDataAPI(),
		state:   NewMemoryStore(records...),
		fetcher: &fakeFetcher{results: map[string]TranscriptResult{}, errs: map[string]error{}},
		writer:  &memoryWriter{},
	}
}

func (f *appFixture) app() *App {
	return NewApp(f.config,
		WithDataAPI(f.api),
		WithStateStore(f.state),
		WithTranscriptFetcher(f.fetcher),
		WithSummarizer(&fakeSummarizer{}),
		WithNoteWriter(f.writer),
		WithLogger(discardLogger()),
		WithUI(NewUIManagerTo(io.Discard, false)),
		WithClock(func() time.Time { return testNow }),
	)
}

func TestApp_RunExplicit(t *testing.T) {
	f := newAppFixture(t)

	report := f.app().Run(context.Background(), ExplicitMode("dQw4w9WgXcQ"), RunOptions{})
	require.NoError(t, report.Err)
	assert.Equal(t, RunSuccess, report.Status)

	rec, ok := f.state.Lookup("dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, OutcomeSummarized, rec.Outcome)
	assert.Contains(t, f.writer.notes, "dQw4w9WgXcQ")

	// The lock is released when the run ends.
	lock, err := AcquireRunLock(f.config.StateFile)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestApp_RunRefusesHeldLock(t *testing.T) {
	f := newAppFixture(t)
	lock, err := AcquireRunLock(f.config.StateFile)
	require.NoError(t, err)
	defer lock.Release()

	report := f.app().Run(context.Background(), ExplicitMode("dQw4w9WgXcQ"), RunOptions{})
	assert.Equal(t, RunFatal, report.Status)
	assert.ErrorIs(t, report.Err, ErrRunLocked)
	assert.Empty(t, f.fetcher.calls)

	// Dry runs never take the lock.
	report = f.app().Run(context.Background(), ExplicitMode("dQw4w9WgXcQ"), RunOptions{DryRun: true})
	assert.Equal(t, RunSuccess, report.Status)
	assert.False(t, f.state.IsProcessed("dQw4w9WgXcQ"))
}

func TestApp_RunInvalidMode(t *testing.T) {
	f := newAppFixture(t)
	report := f.app().Run(context.Background(), PlaylistMode("  "), RunOptions{})
	assert.Equal(t, RunFatal, report.Status)
	assert.ErrorIs(t, report.Err, ErrInvalidMode)
	assert.Zero(t, f.api.totalCalls())
}

func TestApp_SeedPlaylist(t *testing.T) {
	f := newAppFixture(t)
	f.api.playlists["PLqueue000001"] = PlaylistInfo{ID: "PLqueue000001", Title: "Queue"}
	f.api.uploads["PLqueue000001"] = []VideoCandidate{vid("a1", 1), vid("a2", 40)}

	res, err := f.app().SeedPlaylist(context.Background(), "PLqueue000001")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seeded)
	assert.True(t, f.state.IsProcessed("a2"))
}

func TestApp_ReadNote(t *testing.T) {
	notePath := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("# Note\n"), 0o644))
	f := newAppFixture(t,
		ProcessedRecord{VideoID: "tAP1eZYEuKA", Outcome: OutcomeSummarized, NotePath: notePath, ProcessedAt: testNow},
		ProcessedRecord{VideoID: "dQw4w9WgXcQ", Outcome: OutcomeNoTranscript, ProcessedAt: testNow},
		ProcessedRecord{VideoID: "abcdefghijk", Outcome: OutcomeSummarized, NotePath: "/gone/note.md", ProcessedAt: testNow},
	)
	app := f.app()

	path, data, err := app.ReadNote(context.Background(), "https://youtu.be/tAP1eZYEuKA")
	require.NoError(t, err)
	assert.Equal(t, notePath, path)
	assert.Equal(t, "# Note\n", string(data))

	_, _, err = app.ReadNote(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrNoNote)

	_, _, err = app.ReadNote(context.Background(), "abcdefghijk")
	assert.ErrorIs(t, err, ErrNoNote)

	_, _, err = app.ReadNote(context.Background(), "not a video")
	assert.Error(t, err)
}

func TestApp_ListAndPurgeRecords(t *testing.T) {
	f := newAppFixture(t,
		ProcessedRecord{VideoID: "tAP1eZYEuKA", Outcome: OutcomeSummarized, ProcessedAt: testNow},
		ProcessedRecord{VideoID: "dQw4w9WgXcQ", Outcome: OutcomeError, Attempts: 1, ProcessedAt: testNow},
	)
	app := f.app()

	all, err := app.ListRecords(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	errored, err := app.ListRecords(context.Background(), OutcomeError)
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "dQw4w9WgXcQ", errored[0].VideoID)

	n, err := app.PurgeRecords(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.state.IsProcessed("dQw4w9WgXcQ"))

	_, err = app.PurgeRecords(context.Background(), "nope")
	assert.Error(t, err)
}

func TestApp_Transcript(t *testing.T) {
	f := newAppFixture(t)
	f.fetcher.results["dQw4w9WgXcQ"] = TranscriptResult{VideoID: "dQw4w9WgXcQ", Status: TranscriptBlocked, Reason: "rate_limited"}
	f.fetcher.results["abcdefghijk"] = TranscriptResult{VideoID: "abcdefghijk", Status: TranscriptUnavailable, Reason: ReasonDisabledByUploader}
	app := f.app()

	res, err := app.Transcript(context.Background(), "tAP1eZYEuKA")
	require.NoError(t, err)
	assert.Contains(t, res.Text(), "garden shed")

	_, err = app.Transcript(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = app.Transcript(context.Background(), "abcdefghijk")
	assert.ErrorContains(t, err, ReasonDisabledByUploader)

	f.fetcher.results["zzzzzzzzzzz"] = TranscriptResult{VideoID: "zzzzzzzzzzz"}
	_, err = app.Transcript(context.Background(), "zzzzzzzzzzz")
	assert.ErrorContains(t, err, "no status")

	res, err = app.CheckBlock(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, TranscriptBlocked, res.Status, "the default check video is used")
}

func TestApp_Discover(t *testing.T) {
	f := newAppFixture(t, ProcessedRecord{VideoID: "a1", Outcome: OutcomeSummarized, ProcessedAt: testNow})
	f.config.UseEfficientDiscovery = true
	f.config.ShortlistSize = 5
	f.api.subs = []Channel{{ID: "UCchan00", Title: "Chan"}}
	f.api.uploads["UUchan00"] = []VideoCandidate{vid("a1", 1), vid("a2", 2), vid("a3", 30)}

	res, used, err := f.app().Discover(context.Background(), SubscriptionsMode())
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(res.Candidates))
	assert.Equal(t, 2, used)
	assert.False(t, f.state.IsProcessed("a2"), "discovery never records")
}

func TestApp_CorruptStateMovedAsideOnlyUnderLock(t *testing.T) {
	f := newAppFixture(t)
	require.NoError(t, os.WriteFile(f.config.StateFile, []byte("{not json"), 0o644))
	app := NewApp(f.config, WithLogger(discardLogger()), WithUI(NewUIManagerTo(io.Discard, false)))

	records, err := app.ListRecords(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.FileExists(t, f.config.StateFile, "read-only commands leave the file alone")

	_, err = app.PurgeRecords(context.Background(), "tAP1eZYEuKA")
	require.NoError(t, err)
	matches, err := filepath.Glob(f.config.StateFile + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
