package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func noteFixture() (VideoCandidate, TranscriptResult, SummaryArtifact) {
	v := vid("tAP1eZYEuKA", 3)
	v.Title = "Building a Shed: Part 1"
	v.OwnerChannelTitle = "Workshop"
	tr := availableTranscript(v.ID)
	tr.Generated = true
	s := SummaryArtifact{
		VideoID:     v.ID,
		TLDR:        "  We build the base of a shed.  ",
		KeyPoints:   []string{"Level the ground", "Use gravel"},
		ActionItems: []string{"Buy gravel"},
		Quote:       "Drainage is everything.",
		Backend:     BackendRemote,
	}
	return v, tr, s
}

func TestRenderNote(t *testing.T) {
	v, tr, s := noteFixture()

	out, err := RenderNote(v, tr, s)
	require.NoError(t, err)
	note := string(out)

	fm, body, ok := splitFrontMatter(out)
	require.True(t, ok)
	var meta noteFrontMatter
	require.NoError(t, yaml.Unmarshal(fm, &meta))
	assert.Equal(t, "Building a Shed: Part 1", meta.Title)
	assert.Equal(t, "Workshop", meta.Channel)
	assert.Equal(t, "tAP1eZYEuKA", meta.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=tAP1eZYEuKA", meta.SourceURL)
	assert.Equal(t, "10:00", meta.Duration)
	assert.Equal(t, "en", meta.TranscriptLanguage)
	assert.True(t, meta.TranscriptGenerated)
	assert.Equal(t, "openai", meta.SummaryBackend)
	assert.Equal(t, v.PublishedAt.UTC().Format(time.RFC3339), meta.PublishedAt)

	assert.True(t, strings.HasPrefix(string(body), "\n# Building a Shed: Part 1\n"))
	assert.Contains(t, note, "## TL;DR\n\nWe build the base of a shed.\n")
	assert.Contains(t, note, "## Key takeaways\n\n- Level the ground\n- Use gravel\n")
	assert.Contains(t, note, "## Follow-up actions\n\n- Buy gravel\n")
	assert.Contains(t, note, "## Quote\n\n> Drainage is everything.\n")
	assert.Contains(t, note, "## Transcript\n\nWelcome back to the channel")

	// Sections appear in a fixed order.
	order := []string{"## TL;DR", "## Key takeaways", "## Follow-up actions", "## Quote", "## Transcript"}
	last := -1
	for _, h := range order {
		idx := strings.Index(note, h)
		require.Greater(t, idx, last, h)
		last = idx
	}
}

func TestRenderNote_OmitsEmptySections(t *testing.T) {
	v, tr, _ := noteFixture()
	tr.Language = ""

	out, err := RenderNote(v, tr, SummaryArtifact{TLDR: "Short.", Backend: BackendLocal})
	require.NoError(t, err)
	note := string(out)

	assert.NotContains(t, note, "## Key takeaways")
	assert.NotContains(t, note, "## Follow-up actions")
	assert.NotContains(t, note, "## Quote")
	assert.Contains(t, note, "transcript_language: unknown")
	assert.Contains(t, note, "summary_backend: local")
}

func TestMarkdownWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewMarkdownWriter(dir)
	v, tr, s := noteFixture()

	path, err := w.Write(v, tr, s)
	require.NoError(t, err)

	want := "Building a Shed Part 1 - " + v.PublishedAt.Local().Format("2006-01-02") + ".md"
	assert.Equal(t, filepath.Join(dir, want), path)
	assert.FileExists(t, path)

	// Rewriting the same video reuses its note.
	again, err := w.Write(v, tr, s)
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestMarkdownWriter_CollisionGetsIDSuffix(t *testing.T) {
	dir := t.TempDir()
	w := NewMarkdownWriter(dir)
	v, tr, s := noteFixture()

	first, err := w.Write(v, tr, s)
	require.NoError(t, err)

	other := v
	other.ID = "abcdefghijk"
	second, err := w.Write(other, tr, s)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, " (abcdefghijk).md"))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "tAP1eZYEuKA", noteVideoID(data), "the first note is left alone")
}

func TestNoteFilename_Fallbacks(t *testing.T) {
	fallback := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	name := NoteFilename(VideoCandidate{ID: "tAP1eZYEuKA"}, fallback)
	assert.Equal(t, "tAP1eZYEuKA - "+fallback.Local().Format("2006-01-02")+".md", name)
}

func TestStripFrontMatter(t *testing.T) {
	assert.Equal(t, "\n# Title\n", StripFrontMatter([]byte("---\ntitle: x\n---\n\n# Title\n")))
	assert.Equal(t, "# No header\n", StripFrontMatter([]byte("# No header\n")))
	assert.Equal(t, "---\nunterminated\n", StripFrontMatter([]byte("---\nunterminated\n")))
}
