package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// CandidateSource produces the candidates of a run.
type CandidateSource interface {
	Discover(ctx context.Context, mode Mode, opts DiscoverOptions) (DiscoveryResult, error)
	QuotaUsed() int
}

// QuotaUsed reports the units charged by the discoverer's client so far.
func (d *Discoverer) QuotaUsed() int {
	return d.client.Ledger().Used()
}

// RunRequest selects what a run does.
type RunRequest struct {
	Mode            Mode
	Options         DiscoverOptions
	DryRun          bool
	ShowTranscripts bool
	SkipState       bool
}

// Pipeline processes candidates one at a time: transcript, summary, note,
// record. It is the only writer of the state store.
type Pipeline struct {
	source      CandidateSource
	state       StateStore
	transcripts TranscriptFetcher
	summarizer  Summarizer
	writer      NoteWriter
	ui          UIManager
	out         io.Writer
	logger      *slog.Logger
	now         func() time.Time
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

func WithPipelineUI(ui UIManager) PipelineOption {
	return func(p *Pipeline) { p.ui = ui }
}

func WithPipelineOutput(w io.Writer) PipelineOption {
	return func(p *Pipeline) { p.out = w }
}

func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(source CandidateSource, state StateStore, transcripts TranscriptFetcher, summarizer Summarizer, writer NoteWriter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		source:      source,
		state:       state,
		transcripts: transcripts,
		summarizer:  summarizer,
		writer:      writer,
		ui:          NewUIManager(false, true),
		out:         os.Stdout,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run discovers and processes candidates. It never returns a nil report;
// fatal conditions are reported through RunReport.Status and Err.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) *RunReport {
	report := &RunReport{Mode: req.Mode.Kind, DryRun: req.DryRun}

	res, err := p.source.Discover(ctx, req.Mode, req.Options)
	report.QuotaUsed = p.source.QuotaUsed()
	if err != nil {
		report.Status = RunFatal
		report.Err = fmt.Errorf("discovery failed: %w", err)
		if ctx.Err() != nil {
			report.Status = RunPartial
			report.Interrupted = true
		}
		return report
	}
	report.Playlist = res.Playlist
	report.QuotaExhausted = res.QuotaExhausted
	report.Counts.SkippedDuplicate = res.Filtered.Processed
	report.Counts.FilteredAge = res.Filtered.Age
	report.Counts.FilteredShorts = res.Filtered.Shorts
	report.Counts.FilteredWatched = res.Filtered.Watched
	for _, ref := range res.InvalidRefs {
		p.ui.Printf("Skipping invalid video reference: %s\n", ref)
	}

	cands := res.Candidates
	if len(cands) == 0 {
		p.ui.Println("No new videos to process.")
	}

	bar := p.ui.NewProgressBar(len(cands), "Processing videos")
	for i, c := range cands {
		if ctx.Err() != nil {
			p.logger.Warn("run interrupted", slog.Int("remaining", len(cands)-i))
			report.Interrupted = true
			report.Counts.NotAttempted += len(cands) - i
			break
		}
		bar.Set(i)
		bar.Describe(truncateRunes(c.Title, 40))

		// Cancellation stops the run between videos only. Each remote call
		// below carries its own timeout.
		result := p.processOne(context.WithoutCancel(ctx), c, req)
		report.Results = append(report.Results, result)

		switch result.State {
		case StateListed:
			report.Counts.Listed++
		case StateAborted:
			report.Counts.Blocked++
			report.Counts.NotAttempted += len(cands) - i - 1
		default:
			switch result.Outcome {
			case OutcomeSummarized:
				report.Counts.Summarized++
			case OutcomeNoTranscript:
				report.Counts.NoTranscript++
			case OutcomeError:
				report.Counts.Errored++
			}
		}
		if result.State == StateAborted {
			p.logger.Warn("transcript access blocked, stopping run",
				slog.String("video_id", c.ID), slog.String("reason", result.Reason))
			break
		}
	}
	bar.Set(len(report.Results))
	bar.Finish()

	if !req.DryRun && !req.SkipState {
		if err := p.state.Flush(context.WithoutCancel(ctx)); err != nil {
			p.logger.Error("flushing state", slog.Any("error", err))
		}
	}

	report.Status = p.status(report)
	p.logger.Info("run finished",
		slog.String("status", string(report.Status)),
		slog.Int("summarized", report.Counts.Summarized),
		slog.Int("no_transcript", report.Counts.NoTranscript),
		slog.Int("errored", report.Counts.Errored),
		slog.Int("blocked", report.Counts.Blocked),
		slog.Int("quota_used", report.QuotaUsed))
	return report
}

func (p *Pipeline) status(r *RunReport) RunStatus {
	switch {
	case r.Counts.Blocked > 0:
		return RunBlocked
	case r.Interrupted:
		return RunPartial
	case r.QuotaExhausted:
		return RunQuotaExhausted
	case r.Counts.Errored > 0:
		return RunPartial
	default:
		return RunSuccess
	}
}

// processOne drives a single candidate through the state machine. A failure
// here never escapes to the caller; it becomes the candidate's outcome.
func (p *Pipeline) processOne(ctx context.Context, c VideoCandidate, req RunRequest) VideoResult {
	tr := newCandidateTracker(c.ID)
	result := VideoResult{Video: c}
	log := p.logger.With(slog.String("video_id", c.ID), slog.String("title", c.Title))

	advance := func(next CandidateState) {
		if err := tr.to(next); err != nil {
			log.Error("state machine", slog.Any("error", err))
		}
		result.State = tr.state
	}

	if req.DryRun && !req.ShowTranscripts {
		advance(StateListed)
		return result
	}

	advance(StateTranscriptFetching)
	transcript, err := p.transcripts.Fetch(ctx, c.ID)
	if err == nil {
		err = transcript.classify()
	}
	switch {
	case errors.Is(err, ErrBlocked):
		advance(StateBlocked)
		advance(StateAborted)
		result.Reason = transcript.Reason
		if result.Reason == "" {
			result.Reason = err.Error()
		}
		return result
	case err != nil:
		log.Warn("transcript fetch failed", slog.Any("error", err))
		if req.DryRun {
			advance(StateListed)
			result.Snippet = "(transcript unavailable: " + err.Error() + ")"
			return result
		}
		advance(StateError)
		return p.record(ctx, tr, result, OutcomeError, "transcript: "+err.Error(), "", req, log)
	case transcript.Status == TranscriptUnavailable:
		log.Info("no transcript", slog.String("reason", transcript.Reason))
		if req.DryRun {
			advance(StateListed)
			result.Snippet = "(no transcript: " + transcript.Reason + ")"
			return result
		}
		advance(StateNoTranscript)
		return p.record(ctx, tr, result, OutcomeNoTranscript, transcript.Reason, "", req, log)
	}

	if req.ShowTranscripts {
		if req.DryRun {
			advance(StateListed)
			result.Snippet = snippet(transcript.Text(), 300)
			return result
		}
		fmt.Fprintf(p.out, "---- TRANSCRIPT %s ----\n%s\n", c.ID, transcript.Text())
	}

	advance(StateSummarizing)
	summary, err := p.summarizer.Summarize(ctx, c, transcript)
	if err != nil {
		log.Warn("summarizing failed", slog.Any("error", err))
		advance(StateError)
		return p.record(ctx, tr, result, OutcomeError, "summary: "+err.Error(), "", req, log)
	}

	path, err := p.writer.Write(c, transcript, summary)
	if err != nil {
		log.Warn("writing note failed", slog.Any("error", err))
		advance(StateError)
		return p.record(ctx, tr, result, OutcomeError, "write: "+err.Error(), "", req, log)
	}
	advance(StateWritten)
	log.Info("note written", slog.String("path", path), slog.String("backend", string(summary.Backend)))
	return p.record(ctx, tr, result, OutcomeSummarized, "", path, req, log)
}

// record persists the outcome after the note (if any) is on disk.
func (p *Pipeline) record(ctx context.Context, tr *candidateTracker, result VideoResult, outcome Outcome, reason, notePath string, req RunRequest, log *slog.Logger) VideoResult {
	result.Outcome = outcome
	result.Reason = reason
	result.NotePath = notePath

	if req.SkipState {
		result.State = tr.state
		return result
	}

	rec := ProcessedRecord{
		VideoID:     result.Video.ID,
		Title:       result.Video.Title,
		Outcome:     outcome,
		Reason:      reason,
		NotePath:    notePath,
		ProcessedAt: p.now().UTC(),
	}
	if outcome == OutcomeError {
		prev, _ := p.state.Lookup(result.Video.ID)
		if prev.Outcome == OutcomeError {
			rec.Attempts = prev.Attempts
		}
		rec.Attempts++
	}
	// Detach from cancellation so an interrupt after the note is written
	// cannot lose the record.
	if err := p.state.MarkProcessed(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("recording outcome failed", slog.Any("error", err))
		result.Reason = strings.TrimSpace(result.Reason + " (state not saved: " + err.Error() + ")")
		result.State = tr.state
		return result
	}
	if err := tr.to(StateRecorded); err != nil {
		log.Error("state machine", slog.Any("error", err))
	}
	result.State = tr.state
	return result
}

// SeedResult summarizes a SeedPlaylist call.
type SeedResult struct {
	Playlist       PlaylistInfo
	Seeded         int
	AlreadyPresent int
	QuotaExhausted bool
}

// SeedPlaylist records every current item of a playlist as seeded, so later
// runs only pick up videos added afterwards.
func SeedPlaylist(ctx context.Context, client *QuotaClient, state StateStore, name string, maxItems int, now time.Time) (SeedResult, error) {
	var res SeedResult
	info, err := client.ResolvePlaylist(ctx, name)
	if err != nil {
		return res, fmt.Errorf("resolving playlist: %w", err)
	}
	res.Playlist = info

	videos, err := client.ListPlaylistVideos(ctx, info.ID, maxItems)
	if errors.Is(err, ErrQuotaExhausted) {
		res.QuotaExhausted = true
		videos = partialFrom(err)
	} else if err != nil {
		return res, fmt.Errorf("listing playlist items: %w", err)
	}

	for _, v := range videos {
		if state.IsProcessed(v.ID) {
			res.AlreadyPresent++
			continue
		}
		rec := ProcessedRecord{
			VideoID:     v.ID,
			Title:       v.Title,
			Outcome:     OutcomeSeeded,
			Reason:      "marked from playlist " + info.Title,
			ProcessedAt: now.UTC(),
		}
		if err := state.MarkProcessed(ctx, rec); err != nil {
			return res, fmt.Errorf("recording %s: %w", v.ID, err)
		}
		res.Seeded++
	}
	return res, state.Flush(ctx)
}
