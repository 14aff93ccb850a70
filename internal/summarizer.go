package internal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Summarizer turns a transcript into a structured summary.
type Summarizer interface {
	Backend() Backend
	Summarize(ctx context.Context, video VideoCandidate, transcript TranscriptResult) (SummaryArtifact, error)
}

// SummarizerConfig is the part of Config that picks and tunes a backend.
type SummarizerConfig struct {
	OpenAIAPIKey   string
	OpenAIModel    string
	SummaryTimeout time.Duration
	LocalSentences int
}

// SelectSummarizer picks the remote backend when an API key is configured
// and the local one otherwise. It performs no I/O.
func SelectSummarizer(cfg SummarizerConfig, prompts *PromptManager) Summarizer {
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return NewRemoteSummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.SummaryTimeout, prompts)
	}
	return NewLocalSummarizer(cfg.LocalSentences)
}

// LocalSummarizer extracts the most central sentences with TextRank.
type LocalSummarizer struct {
	sentences int
}

func NewLocalSummarizer(sentences int) *LocalSummarizer {
	if sentences <= 0 {
		sentences = 6
	}
	return &LocalSummarizer{sentences: sentences}
}

func (s *LocalSummarizer) Backend() Backend { return BackendLocal }

const (
	localFallbackChars = 800
	maxQuoteWords      = 50
)

// Summarize is deterministic for a given transcript.
func (s *LocalSummarizer) Summarize(ctx context.Context, video VideoCandidate, transcript TranscriptResult) (SummaryArtifact, error) {
	if err := ctx.Err(); err != nil {
		return SummaryArtifact{}, err
	}
	text := transcript.Text()
	if strings.TrimSpace(text) == "" {
		return SummaryArtifact{}, fmt.Errorf("empty transcript for %s", video.ID)
	}

	artifact := SummaryArtifact{
		VideoID: video.ID,
		Title:   video.Title,
		Backend: BackendLocal,
	}

	ranked := TextRank(splitSentences(text))
	if len(ranked) == 0 {
		artifact.TLDR = truncateRunes(text, localFallbackChars)
		return artifact, nil
	}

	artifact.TLDR = strings.Join(topInDocumentOrder(ranked, s.sentences), " ")
	for _, r := range ranked {
		if len(strings.Fields(r.Text)) <= maxQuoteWords {
			artifact.Quote = r.Text
			break
		}
	}
	return artifact, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
