package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ModeKind selects where candidates come from.
type ModeKind int

const (
	ModeSubscriptions ModeKind = iota
	ModePlaylist
	ModeExplicit
)

func (k ModeKind) String() string {
	switch k {
	case ModePlaylist:
		return "playlist"
	case ModeExplicit:
		return "explicit"
	default:
		return "subscriptions"
	}
}

// Mode is one run's discovery mode. Exactly one mode applies per run.
type Mode struct {
	Kind     ModeKind
	Playlist string
	Refs     []string
}

func SubscriptionsMode() Mode { return Mode{Kind: ModeSubscriptions} }

func PlaylistMode(name string) Mode { return Mode{Kind: ModePlaylist, Playlist: name} }

func ExplicitMode(refs ...string) Mode { return Mode{Kind: ModeExplicit, Refs: refs} }

// Validate rejects modes that cannot be run.
func (m Mode) Validate() error {
	switch m.Kind {
	case ModeSubscriptions:
		return nil
	case ModePlaylist:
		if strings.TrimSpace(m.Playlist) == "" {
			return fmt.Errorf("%w: playlist name is empty", ErrInvalidMode)
		}
		return nil
	case ModeExplicit:
		if len(m.Refs) == 0 {
			return fmt.Errorf("%w: no video URLs or IDs given", ErrInvalidMode)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown mode %d", ErrInvalidMode, m.Kind)
}

// DiscoverOptions carries the knobs of candidate selection.
type DiscoverOptions struct {
	MaxVideos          int
	MaxAgeDays         int
	PlaylistMaxAgeDays int
	PerChannelLimit    int
	ExcludeShorts      bool
	ShortsMaxSeconds   int
	Efficient          bool
	ShortlistSize      int
	PoolFactor         int
	PlaylistMaxItems   int
	RetryNoTranscript  bool
	MaxErrorAttempts   int
	Watched            map[string]struct{}
	Now                time.Time
}

// DiscoveryResult is the ordered, filtered candidate list of a run.
type DiscoveryResult struct {
	Candidates     []VideoCandidate
	QuotaExhausted bool
	Playlist       PlaylistInfo
	Discovered     int
	Filtered       FilterCounts
	SkippedSources []string
	InvalidRefs    []string
}

// Discoverer lists candidates through the quota-aware client and filters
// them against the state store.
type Discoverer struct {
	client *QuotaClient
	state  StateStore
	logger *slog.Logger
}

func NewDiscoverer(client *QuotaClient, state StateStore, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{client: client, state: state, logger: logger}
}

// Discover produces the candidates for mode. Quota exhaustion during listing
// is not an error: whatever was gathered is filtered and returned with
// QuotaExhausted set.
func (d *Discoverer) Discover(ctx context.Context, mode Mode, opts DiscoverOptions) (DiscoveryResult, error) {
	if err := mode.Validate(); err != nil {
		return DiscoveryResult{}, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var (
		res   DiscoveryResult
		cands []VideoCandidate
		err   error
	)
	switch mode.Kind {
	case ModeSubscriptions:
		cands, err = d.fromSubscriptions(ctx, opts, &res)
	case ModePlaylist:
		cands, err = d.fromPlaylist(ctx, mode.Playlist, opts, &res)
	case ModeExplicit:
		cands, err = d.fromExplicit(ctx, mode.Refs, opts, &res)
	}
	if errors.Is(err, ErrQuotaExhausted) {
		d.logger.Warn("quota exhausted during discovery, continuing with partial results",
			slog.Int("candidates", len(cands)), slog.Any("error", err))
		res.QuotaExhausted = true
		err = nil
	}
	if err != nil {
		return res, err
	}
	res.Discovered = len(cands)

	if opts.ExcludeShorts && !res.QuotaExhausted {
		d.enrichDurations(ctx, cands, opts, &res)
	}

	filters := FilterSet{
		ExcludeShorts:     opts.ExcludeShorts,
		ShortsMax:         time.Duration(opts.ShortsMaxSeconds) * time.Second,
		State:             d.state,
		RetryNoTranscript: opts.RetryNoTranscript,
		MaxErrorAttempts:  opts.MaxErrorAttempts,
		Watched:           opts.Watched,
	}
	switch mode.Kind {
	case ModeSubscriptions:
		filters.Cutoff = cutoff(opts.Now, opts.MaxAgeDays)
		filters.Cap = opts.MaxVideos
	case ModePlaylist:
		filters.Cutoff = cutoff(opts.Now, opts.PlaylistMaxAgeDays)
		filters.Cap = opts.MaxVideos
	}

	res.Candidates, res.Filtered = ApplyFilters(cands, filters)
	d.logger.Info("discovery finished",
		slog.String("mode", mode.Kind.String()),
		slog.Int("discovered", res.Discovered),
		slog.Int("selected", len(res.Candidates)),
		slog.Int("filtered_age", res.Filtered.Age),
		slog.Int("filtered_shorts", res.Filtered.Shorts),
		slog.Int("filtered_processed", res.Filtered.Processed),
		slog.Int("filtered_watched", res.Filtered.Watched),
		slog.Int("quota_used", d.client.Ledger().Used()),
		slog.Bool("quota_exhausted", res.QuotaExhausted))
	return res, nil
}

func cutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

func (d *Discoverer) fromSubscriptions(ctx context.Context, opts DiscoverOptions, res *DiscoveryResult) ([]VideoCandidate, error) {
	var (
		channels []Channel
		err      error
	)
	if opts.Efficient {
		channels, err = d.client.ListSubscriptions(ctx, max(opts.ShortlistSize, 1))
	} else {
		channels, err = d.client.ListAllSubscriptions(ctx)
	}
	if err != nil && !errors.Is(err, ErrQuotaExhausted) {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	if err != nil {
		// Nothing can be listed after exhaustion.
		return nil, err
	}
	d.logger.Info("listed subscriptions", slog.Int("channels", len(channels)), slog.Bool("efficient", opts.Efficient))

	perChannel := max(opts.PerChannelLimit, 1)
	pool := opts.MaxVideos * max(opts.PoolFactor, 1)
	since := cutoff(opts.Now, opts.MaxAgeDays)

	var out []VideoCandidate
	for _, ch := range channels {
		if pool > 0 && len(out) >= pool {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		uploads, err := d.client.ListRecentUploads(ctx, ch, perChannel)
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			return out, err
		case errors.Is(err, ErrSourceUnavailable):
			d.logger.Warn("skipping channel", slog.String("channel", ch.Title), slog.String("id", ch.ID), slog.Any("error", err))
			res.SkippedSources = append(res.SkippedSources, ch.ID)
			continue
		case err != nil:
			d.logger.Warn("listing uploads failed, skipping channel",
				slog.String("channel", ch.Title), slog.String("id", ch.ID), slog.Any("error", err))
			res.SkippedSources = append(res.SkippedSources, ch.ID)
			continue
		}

		got := 0
		for _, v := range uploads {
			if !since.IsZero() && v.PublishedAt.Before(since) {
				continue
			}
			out = append(out, v)
			got++
			if got >= perChannel {
				break
			}
		}
		if got == 0 {
			d.logger.Debug("no recent uploads", slog.String("channel", ch.Title))
		}
	}
	return out, nil
}

func (d *Discoverer) fromPlaylist(ctx context.Context, name string, opts DiscoverOptions, res *DiscoveryResult) ([]VideoCandidate, error) {
	info, err := d.client.ResolvePlaylist(ctx, name)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("resolving playlist: %w", err)
	}
	res.Playlist = info
	d.logger.Info("using playlist", slog.String("title", info.Title), slog.String("id", info.ID))

	items, err := d.client.ListPlaylistVideos(ctx, info.ID, opts.PlaylistMaxItems)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return partialFrom(err), err
		}
		return nil, fmt.Errorf("listing playlist %s: %w", info.ID, err)
	}
	return items, nil
}

func (d *Discoverer) fromExplicit(ctx context.Context, refs []string, opts DiscoverOptions, res *DiscoveryResult) ([]VideoCandidate, error) {
	var out []VideoCandidate
	for _, r := range refs {
		parsed := ParseVideoRef(r)
		if !parsed.IsValid() {
			d.logger.Warn("ignoring invalid video reference", slog.String("input", r))
			res.InvalidRefs = append(res.InvalidRefs, r)
			continue
		}
		c := VideoCandidate{ID: parsed.ID, Source: SourceExplicit}
		if parsed.ContentType == ContentTypeShort {
			c.DurationClass = DurationShort
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid video URLs or IDs in %s", ErrInvalidMode, strings.Join(refs, ", "))
	}

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ID
	}
	details, err := d.client.VideoDetails(ctx, ids)
	for i := range out {
		if det, ok := details[out[i].ID]; ok {
			applyDetails(&out[i], det)
		}
	}
	if err != nil && !errors.Is(err, ErrQuotaExhausted) {
		// Metadata is optional for explicit videos.
		d.logger.Warn("fetching video details failed, continuing without metadata", slog.Any("error", err))
		return out, nil
	}
	return out, err
}

// enrichDurations looks up durations for candidates that may survive the
// age and processed filters. Quota exhaustion leaves the rest unknown.
func (d *Discoverer) enrichDurations(ctx context.Context, cands []VideoCandidate, opts DiscoverOptions, res *DiscoveryResult) {
	var ids []string
	for _, c := range cands {
		if c.Duration > 0 || c.DurationClass == DurationShort {
			continue
		}
		if d.state != nil && d.state.IsProcessed(c.ID) {
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return
	}

	details, err := d.client.VideoDetails(ctx, ids)
	for i := range cands {
		if det, ok := details[cands[i].ID]; ok && det.Duration > 0 {
			cands[i].Duration = det.Duration
			cands[i].DurationClass = classifyDuration(cands[i], time.Duration(opts.ShortsMaxSeconds)*time.Second)
		}
	}
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		d.logger.Warn("quota exhausted while fetching durations, unknown durations are kept")
		res.QuotaExhausted = true
	case err != nil:
		d.logger.Warn("fetching durations failed, unknown durations are kept", slog.Any("error", err))
	}
}

func applyDetails(c *VideoCandidate, det VideoDetails) {
	c.Title = det.Title
	c.ChannelID = det.ChannelID
	c.ChannelTitle = det.ChannelTitle
	c.OwnerChannelTitle = det.ChannelTitle
	c.PublishedAt = det.PublishedAt
	if det.Duration > 0 {
		c.Duration = det.Duration
	}
}
