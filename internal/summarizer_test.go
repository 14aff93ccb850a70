package internal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shedTranscript = `Today we are building a garden shed from scratch. ` +
	`The garden shed needs a level base of compacted gravel. ` +
	`My cat walked across the camera twice this morning. ` +
	`A gravel base keeps the shed floor dry and level. ` +
	`The shed floor frame sits directly on the gravel base. ` +
	`Next week we will frame the shed walls and the roof. ` +
	`Thanks for watching and see you soon.`

func transcriptOf(text string) TranscriptResult {
	return TranscriptResult{VideoID: "tAP1eZYEuKA", Status: TranscriptAvailable, Segments: []Segment{{Text: text}}}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One two three. Four five six!  Seven eight nine? Ten")
	assert.Equal(t, []string{"One two three.", "Four five six!", "Seven eight nine?", "Ten"}, got)
}

func TestSplitSentences_UnpunctuatedCaptions(t *testing.T) {
	words := make([]string, 120)
	for i := range words {
		words[i] = "word"
	}
	got := splitSentences(strings.Join(words, " "))
	require.Len(t, got, 4)
	assert.Len(t, strings.Fields(got[0]), pseudoSentenceLen)
	assert.Len(t, strings.Fields(got[3]), 120-3*pseudoSentenceLen)
}

func TestTextRank_CentralSentencesWin(t *testing.T) {
	ranked := TextRank(splitSentences(shedTranscript))
	require.NotEmpty(t, ranked)

	top := ranked[0].Text
	assert.Contains(t, top, "shed")
	for _, r := range ranked[:3] {
		assert.NotContains(t, r.Text, "cat", "an off-topic sentence is never among the best")
	}
}

func TestTextRank_SkipsTinySentences(t *testing.T) {
	assert.Empty(t, TextRank([]string{"Hi there.", "Okay.", "Bye now."}))
}

func TestLocalSummarizer_Deterministic(t *testing.T) {
	s := NewLocalSummarizer(3)
	v := vid("tAP1eZYEuKA", 1)

	first, err := s.Summarize(context.Background(), v, transcriptOf(shedTranscript))
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), v, transcriptOf(shedTranscript))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, BackendLocal, first.Backend)
	assert.Equal(t, v.ID, first.VideoID)
	assert.NotEmpty(t, first.Quote)

	// Picked sentences keep reading order.
	last := -1
	for _, sentence := range splitSentences(first.TLDR) {
		idx := strings.Index(shedTranscript, sentence)
		require.GreaterOrEqual(t, idx, 0, sentence)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestLocalSummarizer_ShortTranscriptFallsBack(t *testing.T) {
	res, err := NewLocalSummarizer(0).Summarize(context.Background(), vid("a", 1), transcriptOf("Hi. Short clip."))
	require.NoError(t, err)
	assert.Equal(t, "Hi. Short clip.", res.TLDR)
}

func TestLocalSummarizer_Errors(t *testing.T) {
	s := NewLocalSummarizer(3)
	_, err := s.Summarize(context.Background(), vid("a", 1), TranscriptResult{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Summarize(ctx, vid("a", 1), transcriptOf(shedTranscript))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSelectSummarizer(t *testing.T) {
	prompts := NewPromptManager(t.TempDir(), "")

	local := SelectSummarizer(SummarizerConfig{LocalSentences: 4}, prompts)
	assert.IsType(t, &LocalSummarizer{}, local)
	assert.Equal(t, BackendLocal, local.Backend())

	remote := SelectSummarizer(SummarizerConfig{OpenAIAPIKey: "sk-test", OpenAIModel: "gpt-4o-mini"}, prompts)
	assert.IsType(t, &RemoteSummarizer{}, remote)
	assert.Equal(t, BackendRemote, remote.Backend())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "hé…", truncateRunes("héllo", 2))
}
