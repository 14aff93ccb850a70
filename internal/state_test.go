package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IsProcessedOnlyForDoneOutcomes(t *testing.T) {
	s := NewMemoryStore(
		ProcessedRecord{VideoID: "a", Outcome: OutcomeSummarized},
		ProcessedRecord{VideoID: "b", Outcome: OutcomeSeeded},
		ProcessedRecord{VideoID: "c", Outcome: OutcomeNoTranscript},
		ProcessedRecord{VideoID: "d", Outcome: OutcomeError, Attempts: 5},
	)
	assert.True(t, s.IsProcessed("a"))
	assert.True(t, s.IsProcessed("b"))
	assert.False(t, s.IsProcessed("c"))
	assert.False(t, s.IsProcessed("d"))
	assert.False(t, s.IsProcessed("missing"))

	_, ok := s.Lookup("c")
	assert.True(t, ok)
}

func TestMemoryStore_RejectsEmptyID(t *testing.T) {
	require.Error(t, NewMemoryStore().MarkProcessed(context.Background(), ProcessedRecord{Outcome: OutcomeSummarized}))
}

func TestMemoryStore_RecordsNewestFirst(t *testing.T) {
	s := NewMemoryStore(
		ProcessedRecord{VideoID: "old", ProcessedAt: testNow.Add(-time.Hour)},
		ProcessedRecord{VideoID: "b", ProcessedAt: testNow},
		ProcessedRecord{VideoID: "a", ProcessedAt: testNow},
	)
	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].VideoID)
	assert.Equal(t, "b", recs[1].VideoID)
	assert.Equal(t, "old", recs[2].VideoID)
}

// storeFactories runs the persistence tests against both backends.
var storeFactories = map[string]func(dir string) StateStore{
	"json": func(dir string) StateStore {
		return NewJSONStore(filepath.Join(dir, "state.json"), discardLogger())
	},
	"sqlite": func(dir string) StateStore {
		return NewSQLiteStore(filepath.Join(dir, "state.db"), discardLogger())
	},
}

func TestStateStore_Persists(t *testing.T) {
	for name, open := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := open(dir)
			require.NoError(t, s.Load(ctx))
			require.NoError(t, s.MarkProcessed(ctx, ProcessedRecord{
				VideoID: "abc", Title: "A video", Outcome: OutcomeSummarized,
				NotePath: "/notes/a.md", ProcessedAt: testNow,
			}))
			require.NoError(t, s.MarkProcessed(ctx, ProcessedRecord{
				VideoID: "def", Outcome: OutcomeError, Reason: "summary: timeout", Attempts: 2, ProcessedAt: testNow,
			}))
			require.NoError(t, s.Flush(ctx))
			require.NoError(t, s.Close())

			reopened := open(dir)
			require.NoError(t, reopened.Load(ctx))
			defer reopened.Close()

			assert.True(t, reopened.IsProcessed("abc"))
			rec, ok := reopened.Lookup("abc")
			require.True(t, ok)
			assert.Equal(t, "A video", rec.Title)
			assert.Equal(t, "/notes/a.md", rec.NotePath)
			assert.True(t, testNow.Equal(rec.ProcessedAt))

			rec, ok = reopened.Lookup("def")
			require.True(t, ok)
			assert.Equal(t, OutcomeError, rec.Outcome)
			assert.Equal(t, 2, rec.Attempts)
			assert.False(t, reopened.IsProcessed("def"))
		})
	}
}

func TestStateStore_UpsertReplacesRecord(t *testing.T) {
	for name, open := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := open(dir)
			require.NoError(t, s.Load(ctx))
			require.NoError(t, s.MarkProcessed(ctx, ProcessedRecord{VideoID: "abc", Outcome: OutcomeError, Attempts: 1}))
			require.NoError(t, s.MarkProcessed(ctx, ProcessedRecord{VideoID: "abc", Outcome: OutcomeSummarized}))
			require.NoError(t, s.Close())

			reopened := open(dir)
			require.NoError(t, reopened.Load(ctx))
			defer reopened.Close()
			assert.Len(t, reopened.Records(), 1)
			assert.True(t, reopened.IsProcessed("abc"))
		})
	}
}

func TestStateStore_Purge(t *testing.T) {
	for name, open := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := open(dir)
			require.NoError(t, s.Load(ctx))
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.MarkProcessed(ctx, ProcessedRecord{VideoID: id, Outcome: OutcomeSummarized}))
			}
			n, err := s.Purge(ctx, "a", "c", "missing")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			require.NoError(t, s.Close())

			reopened := open(dir)
			require.NoError(t, reopened.Load(ctx))
			defer reopened.Close()
			assert.False(t, reopened.IsProcessed("a"))
			assert.True(t, reopened.IsProcessed("b"))
			assert.False(t, reopened.IsProcessed("c"))
		})
	}
}

func TestJSONStore_MissingFileIsEmpty(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "nested", "state.json"), discardLogger())
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Records())
}

func TestJSONStore_CorruptFileMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewJSONStore(path, discardLogger())
	s.QuarantineCorrupt()
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Records())

	matches, err := filepath.Glob(filepath.Join(dir, "state.json.corrupt-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	assert.NoFileExists(t, path)
}

func TestJSONStore_CorruptFileUntouchedByReaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewJSONStore(path, discardLogger())
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Records())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	matches, err := filepath.Glob(filepath.Join(dir, "state.json.corrupt-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestJSONStore_MigratesLegacyIDList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
  "processed_video_ids": ["old1", "aaa"],
  "processed_timestamps": {"aaa": 1718445600}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s := NewJSONStore(path, discardLogger())
	require.NoError(t, s.Load(context.Background()))

	assert.True(t, s.IsProcessed("old1"))
	rec, ok := s.Lookup("old1")
	require.True(t, ok)
	assert.Equal(t, OutcomeSummarized, rec.Outcome)
	assert.False(t, rec.ProcessedAt.IsZero())

	rec, _ = s.Lookup("aaa")
	assert.Equal(t, time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), rec.ProcessedAt, "a timestamp entry keeps its time")

	require.NoError(t, s.Flush(context.Background()))
	var doc stateDocument
	require.NoError(t, readJSON(path, &doc))
	assert.Len(t, doc.Records, 2)
	assert.Empty(t, doc.ProcessedVideoIDs)
}

func TestJSONStore_MigratesLegacyMaps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	legacy := `{
  "processed_timestamps": {"aaa": 1718445600.5, "both": 1718445600},
  "video_errors": {"bbb": "TranscriptsDisabled", "both": "old error"}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s := NewJSONStore(path, discardLogger())
	require.NoError(t, s.Load(context.Background()))

	rec, ok := s.Lookup("aaa")
	require.True(t, ok)
	assert.Equal(t, OutcomeSummarized, rec.Outcome)
	assert.Equal(t, time.Date(2024, 6, 15, 10, 0, 0, 500_000_000, time.UTC), rec.ProcessedAt)

	rec, ok = s.Lookup("bbb")
	require.True(t, ok)
	assert.Equal(t, OutcomeNoTranscript, rec.Outcome)
	assert.Equal(t, "TranscriptsDisabled", rec.Reason)

	rec, _ = s.Lookup("both")
	assert.Equal(t, OutcomeSummarized, rec.Outcome, "a processed timestamp wins over an error entry")

	// The next write uses the current layout only.
	require.NoError(t, s.Flush(context.Background()))
	var doc stateDocument
	require.NoError(t, readJSON(path, &doc))
	assert.Equal(t, stateVersion, doc.Version)
	assert.Len(t, doc.Records, 3)
	assert.Empty(t, doc.ProcessedTimestamps)
	assert.Empty(t, doc.VideoErrors)
}

func TestSQLiteStore_MarkBeforeLoadFails(t *testing.T) {
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), discardLogger())
	err := s.MarkProcessed(context.Background(), ProcessedRecord{VideoID: "a", Outcome: OutcomeSummarized})
	require.Error(t, err)
}
