package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// App holds the application configuration and builds services on demand.
// Options replace individual services, which is how tests inject fakes.
type App struct {
	config *Config
	logger *slog.Logger
	ui     UIManager

	dataAPI     DataAPI
	state       StateStore
	transcripts TranscriptFetcher
	summarizer  Summarizer
	writer      NoteWriter
	now         func() time.Time
}

// NewApp initializes the application
func NewApp(config *Config, options ...AppOption) *App {
	app := &App{
		config: config,
		logger: NewLogger(config.LogLevel, os.Stderr),
		ui:     NewUIManager(config.Verbose, config.Quiet),
		now:    time.Now,
	}

	for _, option := range options {
		option(app)
	}

	return app
}

// AppOption customizes App creation
type AppOption func(*App)

// WithDataAPI sets the YouTube Data API implementation
func WithDataAPI(api DataAPI) AppOption {
	return func(a *App) { a.dataAPI = api }
}

// WithStateStore sets the state store; it is loaded by the app as usual
func WithStateStore(s StateStore) AppOption {
	return func(a *App) { a.state = s }
}

// WithTranscriptFetcher sets the transcript source
func WithTranscriptFetcher(f TranscriptFetcher) AppOption {
	return func(a *App) { a.transcripts = f }
}

// WithSummarizer sets the summarizer backend
func WithSummarizer(s Summarizer) AppOption {
	return func(a *App) { a.summarizer = s }
}

// WithNoteWriter sets where notes go
func WithNoteWriter(w NoteWriter) AppOption {
	return func(a *App) { a.writer = w }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) { a.logger = l }
}

// WithUI sets the user interface manager
func WithUI(ui UIManager) AppOption {
	return func(a *App) { a.ui = ui }
}

// WithClock sets the time source
func WithClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

func (app *App) Config() *Config      { return app.config }
func (app *App) Logger() *slog.Logger { return app.logger }

func (app *App) youtube(ctx context.Context) (DataAPI, error) {
	if app.dataAPI != nil {
		return app.dataAPI, nil
	}
	api, err := NewYouTubeService(ctx, app.config.ClientSecretFile, app.config.TokenFile)
	if err != nil {
		return nil, err
	}
	app.dataAPI = api
	return api, nil
}

func (app *App) quotaClient(ctx context.Context) (*QuotaClient, error) {
	api, err := app.youtube(ctx)
	if err != nil {
		return nil, err
	}
	return NewQuotaClient(api, QuotaClientOptions{
		Budget:  app.config.QuotaBudget,
		Rate:    app.config.APIRate,
		Timeout: app.config.APITimeout,
		Logger:  app.logger,
	}), nil
}

// OpenState returns the loaded state store. Callers own Close.
func (app *App) OpenState(ctx context.Context) (StateStore, error) {
	return app.openState(ctx, false)
}

// openLockedState is OpenState for callers holding the run lock. Only they
// may move a corrupt state file aside.
func (app *App) openLockedState(ctx context.Context) (StateStore, error) {
	return app.openState(ctx, true)
}

type corruptQuarantiner interface {
	QuarantineCorrupt()
}

func (app *App) openState(ctx context.Context, locked bool) (StateStore, error) {
	store := app.state
	if store == nil {
		switch app.config.StateBackend {
		case "sqlite":
			store = NewSQLiteStore(app.config.StateFile, app.logger)
		default:
			store = NewJSONStore(app.config.StateFile, app.logger)
		}
	}
	if q, ok := store.(corruptQuarantiner); ok && locked {
		q.QuarantineCorrupt()
	}
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading state %s: %w", app.config.StateFile, err)
	}
	return store, nil
}

// TranscriptFetcher returns the configured transcript source
func (app *App) TranscriptFetcher() (TranscriptFetcher, error) {
	if app.transcripts != nil {
		return app.transcripts, nil
	}
	var fallback TranscriptFetcher
	if app.config.YtDlpFallback {
		fallback = NewYtDlpFetcher(filepath.Join(app.config.CacheDir, "subs"),
			app.config.TranscriptLanguages, app.config.CookiesFile, app.logger)
	}
	r, err := NewRetriever(RetrieverOptions{
		Languages:        app.config.TranscriptLanguages,
		AcceptNonEnglish: app.config.AcceptNonEnglish,
		CookiesFile:      app.config.CookiesFile,
		Timeout:          app.config.TranscriptTimeout,
		Interval:         app.config.TranscriptInterval,
		Fallback:         fallback,
		Logger:           app.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating transcript retriever: %w", err)
	}
	app.transcripts = r
	return r, nil
}

func (app *App) selectSummarizer() Summarizer {
	if app.summarizer != nil {
		return app.summarizer
	}
	prompts := NewPromptManager(app.config.ConfigDir, app.config.Prompt)
	return SelectSummarizer(app.config.SummarizerConfig(), prompts)
}

func (app *App) noteWriter() (NoteWriter, error) {
	if app.writer != nil {
		return app.writer, nil
	}
	if err := EnsureDirs(app.config.OutputDir); err != nil {
		return nil, err
	}
	return NewMarkdownWriter(app.config.OutputDir), nil
}

// RunOptions are the per-invocation modifiers of a run.
type RunOptions struct {
	DryRun          bool
	ShowTranscripts bool
	SkipState       bool
}

// Run performs one discovery and processing run. Configuration and setup
// failures come back as a fatal report before any candidate is touched.
func (app *App) Run(ctx context.Context, mode Mode, opts RunOptions) *RunReport {
	fatal := func(err error) *RunReport {
		return &RunReport{Mode: mode.Kind, DryRun: opts.DryRun, Status: RunFatal, Err: err}
	}

	if err := mode.Validate(); err != nil {
		return fatal(err)
	}

	// Dry runs never write, so they neither need nor take the lock.
	if !opts.DryRun {
		lock, err := AcquireRunLock(app.config.StateFile)
		if err != nil {
			return fatal(err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				app.logger.Warn("releasing run lock", slog.Any("error", err))
			}
		}()
	}

	state, err := app.openState(ctx, !opts.DryRun)
	if err != nil {
		return fatal(err)
	}
	defer state.Close()

	watched, err := LoadWatchHistory(app.config.WatchHistoryFile)
	if err != nil {
		return fatal(err)
	}
	if len(watched) > 0 {
		app.logger.Info("loaded watch history", slog.Int("videos", len(watched)))
	}

	client, err := app.quotaClient(ctx)
	if err != nil {
		return fatal(err)
	}
	transcripts, err := app.TranscriptFetcher()
	if err != nil {
		return fatal(err)
	}
	summarizer := app.selectSummarizer()
	var writer NoteWriter
	if !opts.DryRun {
		if writer, err = app.noteWriter(); err != nil {
			return fatal(err)
		}
	}
	app.ui.Verbose("Summaries: %s backend\n", summarizer.Backend())

	discoverOpts := app.config.DiscoverOptions()
	discoverOpts.Watched = watched
	discoverOpts.Now = app.now()

	p := NewPipeline(NewDiscoverer(client, state, app.logger), state, transcripts, summarizer, writer,
		WithPipelineUI(app.ui),
		WithPipelineLogger(app.logger),
		WithPipelineClock(app.now))
	return p.Run(ctx, RunRequest{
		Mode:            mode,
		Options:         discoverOpts,
		DryRun:          opts.DryRun,
		ShowTranscripts: opts.ShowTranscripts,
		SkipState:       opts.SkipState,
	})
}

// SeedPlaylist marks the current items of a playlist as already processed.
func (app *App) SeedPlaylist(ctx context.Context, name string) (SeedResult, error) {
	lock, err := AcquireRunLock(app.config.StateFile)
	if err != nil {
		return SeedResult{}, err
	}
	defer lock.Release()

	state, err := app.openLockedState(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	defer state.Close()

	client, err := app.quotaClient(ctx)
	if err != nil {
		return SeedResult{}, err
	}
	return SeedPlaylist(ctx, client, state, name, app.config.PlaylistMaxItems, app.now())
}

// DefaultCheckVideo is a long-lived public video with captions.
const DefaultCheckVideo = "dQw4w9WgXcQ"

// CheckBlock fetches one transcript to test whether this network path is
// blocked. State is never touched.
func (app *App) CheckBlock(ctx context.Context, ref string) (TranscriptResult, error) {
	if ref == "" {
		ref = DefaultCheckVideo
	}
	parsed := ParseVideoRef(ref)
	if !parsed.IsValid() {
		return TranscriptResult{}, fmt.Errorf("%w: %q is not a video URL or ID", ErrInvalidMode, ref)
	}
	f, err := app.TranscriptFetcher()
	if err != nil {
		return TranscriptResult{}, err
	}
	res, err := f.Fetch(ctx, parsed.ID)
	if err == nil && res.Status == TranscriptUnknown {
		err = res.classify()
	}
	return res, err
}

// Transcript fetches the transcript of a single video reference.
func (app *App) Transcript(ctx context.Context, ref string) (TranscriptResult, error) {
	parsed := ParseVideoRef(ref)
	if !parsed.IsValid() {
		return TranscriptResult{}, fmt.Errorf("%q is not a video URL or ID", ref)
	}
	f, err := app.TranscriptFetcher()
	if err != nil {
		return TranscriptResult{}, err
	}
	res, err := f.Fetch(ctx, parsed.ID)
	if err != nil {
		return res, err
	}
	if err := res.classify(); err != nil {
		return res, err
	}
	if res.Status == TranscriptUnavailable {
		return res, fmt.Errorf("no transcript for %s: %s", parsed.ID, res.Reason)
	}
	return res, nil
}

// Record returns the state record of a video reference.
func (app *App) Record(ctx context.Context, ref string) (ProcessedRecord, bool, error) {
	parsed := ParseVideoRef(ref)
	if !parsed.IsValid() {
		return ProcessedRecord{}, false, fmt.Errorf("%q is not a video URL or ID", ref)
	}
	state, err := app.OpenState(ctx)
	if err != nil {
		return ProcessedRecord{}, false, err
	}
	defer state.Close()
	rec, ok := state.Lookup(parsed.ID)
	return rec, ok, nil
}

// ErrNoNote is returned when a video has no note on disk.
var ErrNoNote = errors.New("no note for video")

// ReadNote returns the note written for a video reference.
func (app *App) ReadNote(ctx context.Context, ref string) (string, []byte, error) {
	rec, ok, err := app.Record(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	if !ok || rec.NotePath == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrNoNote, strings.TrimSpace(ref))
	}
	data, err := os.ReadFile(rec.NotePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s was moved or imported", ErrNoNote, rec.NotePath)
		}
		return "", nil, fmt.Errorf("reading note: %w", err)
	}
	return rec.NotePath, data, nil
}

// ListRecords returns state records, optionally restricted to one outcome.
func (app *App) ListRecords(ctx context.Context, outcome Outcome) ([]ProcessedRecord, error) {
	state, err := app.OpenState(ctx)
	if err != nil {
		return nil, err
	}
	defer state.Close()

	var out []ProcessedRecord
	for _, r := range state.Records() {
		if outcome == "" || r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out, nil
}

// PurgeRecords deletes state records so the videos are processed again.
func (app *App) PurgeRecords(ctx context.Context, refs ...string) (int, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		parsed := ParseVideoRef(ref)
		if !parsed.IsValid() {
			return 0, fmt.Errorf("%q is not a video URL or ID", ref)
		}
		ids = append(ids, parsed.ID)
	}

	lock, err := AcquireRunLock(app.config.StateFile)
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	state, err := app.openLockedState(ctx)
	if err != nil {
		return 0, err
	}
	defer state.Close()
	return state.Purge(ctx, ids...)
}

// Discover lists candidates without processing them or touching state.
func (app *App) Discover(ctx context.Context, mode Mode) (DiscoveryResult, int, error) {
	state, err := app.OpenState(ctx)
	if err != nil {
		return DiscoveryResult{}, 0, err
	}
	defer state.Close()

	watched, err := LoadWatchHistory(app.config.WatchHistoryFile)
	if err != nil {
		return DiscoveryResult{}, 0, err
	}
	client, err := app.quotaClient(ctx)
	if err != nil {
		return DiscoveryResult{}, 0, err
	}
	opts := app.config.DiscoverOptions()
	opts.Watched = watched
	opts.Now = app.now()

	res, err := NewDiscoverer(client, state, app.logger).Discover(ctx, mode, opts)
	return res, client.Ledger().Used(), err
}
