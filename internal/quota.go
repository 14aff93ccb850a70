package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

// Unit costs of the Data API methods in use.
const (
	costList   = 1
	costSearch = 100
)

const apiBatchSize = 50

var (
	quotaReasons     = []string{"quotaExceeded", "dailyLimitExceeded"}
	rateLimitReasons = []string{"rateLimitExceeded", "userRateLimitExceeded"}
	accessReasons    = []string{
		"playlistNotFound", "playlistItemsNotAccessible", "forbidden",
		"channelClosed", "channelSuspended", "channelDisabled",
		"subscriptionForbidden", "channelNotFound",
	}
)

// QuotaLedger counts units spent in this run. A zero budget leaves the
// decision to the remote service.
type QuotaLedger struct {
	used      int
	budget    int
	exhausted bool
}

func NewQuotaLedger(budget int) *QuotaLedger {
	return &QuotaLedger{budget: budget}
}

// Charge reserves cost units. It fails without side effects when the call
// would exceed the budget, and always fails once exhausted.
func (l *QuotaLedger) Charge(cost int) error {
	if l.exhausted {
		return ErrQuotaExhausted
	}
	if l.budget > 0 && l.used+cost > l.budget {
		l.exhausted = true
		return ErrQuotaExhausted
	}
	l.used += cost
	return nil
}

func (l *QuotaLedger) Used() int { return l.used }

// Remaining returns the units left, or -1 without a local budget.
func (l *QuotaLedger) Remaining() int {
	if l.budget <= 0 {
		return -1
	}
	return max(l.budget-l.used, 0)
}

func (l *QuotaLedger) Exhausted() bool { return l.exhausted }

func (l *QuotaLedger) markExhausted() { l.exhausted = true }

// QuotaClientOptions tunes pacing and retries of the API client.
type QuotaClientOptions struct {
	Budget  int
	Rate    float64
	Timeout time.Duration
	Retry   RetryConfig
	Logger  *slog.Logger
}

// QuotaClient charges every Data API call against a ledger, paces and
// retries it, and translates remote failures into the error taxonomy.
type QuotaClient struct {
	api     DataAPI
	ledger  *QuotaLedger
	limiter *rate.Limiter
	timeout time.Duration
	retry   RetryConfig
	logger  *slog.Logger
}

func NewQuotaClient(api DataAPI, opts QuotaClientOptions) *QuotaClient {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialWait == 0 {
		opts.Retry = DefaultRetryConfig
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QuotaClient{
		api:     api,
		ledger:  NewQuotaLedger(opts.Budget),
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
}

func (c *QuotaClient) Ledger() *QuotaLedger { return c.ledger }

// callAPI runs one remote request. Each attempt is charged, paced and given
// its own deadline.
func callAPI[T any](ctx context.Context, c *QuotaClient, op string, cost int, fn func(context.Context) (T, error)) (T, error) {
	result, err := RetryDo(ctx, c.retry, isRetryableAPIError, func() (T, error) {
		var zero T
		if err := c.ledger.Charge(cost); err != nil {
			return zero, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		return result, c.classify(op, err)
	}
	c.logger.Debug("api call", slog.String("op", op), slog.Int("quota_used", c.ledger.Used()))
	return result, nil
}

func (c *QuotaClient) classify(op string, err error) error {
	if errors.Is(err, ErrQuotaExhausted) {
		return &QuotaExhaustedError{Op: op}
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	reason := apiErrorReason(apiErr)
	switch {
	case apiErr.Code == http.StatusForbidden && slices.Contains(quotaReasons, reason):
		c.ledger.markExhausted()
		return &QuotaExhaustedError{Op: op, Cause: err}
	case apiErr.Code == http.StatusNotFound,
		apiErr.Code == http.StatusForbidden && slices.Contains(accessReasons, reason):
		return fmt.Errorf("%s: %w (%s)", op, ErrSourceUnavailable, reasonOrStatus(apiErr, reason))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func apiErrorReason(e *googleapi.Error) string {
	for _, item := range e.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return ""
}

func reasonOrStatus(e *googleapi.Error, reason string) string {
	if reason != "" {
		return reason
	}
	return http.StatusText(e.Code)
}

// isRetryableAPIError reports 429, 5xx, per-user rate limits and transient
// network failures. Quota exhaustion is never retried.
func isRetryableAPIError(err error) bool {
	if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return true
		case apiErr.Code == http.StatusForbidden:
			return slices.Contains(rateLimitReasons, apiErrorReason(apiErr))
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isTransientNetErr(err)
}

// ListSubscriptions returns up to limit subscribed channels ordered by
// relevance. On quota exhaustion the channels gathered so far are returned
// alongside the error.
func (c *QuotaClient) ListSubscriptions(ctx context.Context, limit int) ([]Channel, error) {
	return c.listSubscriptions(ctx, "relevance", limit)
}

// ListAllSubscriptions pages through every subscription and resolves each
// channel's uploads playlist with channels.list.
func (c *QuotaClient) ListAllSubscriptions(ctx context.Context) ([]Channel, error) {
	subs, err := c.listSubscriptions(ctx, "alphabetical", 0)
	if err != nil {
		return subs, err
	}

	byID := make(map[string]Channel, len(subs))
	for _, ch := range subs {
		byID[ch.ID] = ch
	}
	out := make([]Channel, 0, len(subs))
	for batch := range slices.Chunk(subs, apiBatchSize) {
		ids := make([]string, len(batch))
		for i, ch := range batch {
			ids[i] = ch.ID
		}
		channels, err := callAPI(ctx, c, "channels.list", costList, func(ctx context.Context) ([]Channel, error) {
			return c.api.Channels(ctx, ids)
		})
		if err != nil {
			return out, err
		}
		for _, ch := range channels {
			if sub, ok := byID[ch.ID]; ok && ch.Title == "" {
				ch.Title = sub.Title
			}
			if ch.UploadsPlaylistID == "" {
				ch.UploadsPlaylistID = uploadsPlaylistID(ch.ID)
			}
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *QuotaClient) listSubscriptions(ctx context.Context, order string, limit int) ([]Channel, error) {
	var out []Channel
	pageToken := ""
	for {
		pageSize := int64(apiBatchSize)
		if limit > 0 {
			pageSize = int64(min(apiBatchSize, limit-len(out)))
		}
		page, err := callAPI(ctx, c, "subscriptions.list", costList, func(ctx context.Context) (SubscriptionPage, error) {
			return c.api.Subscriptions(ctx, order, pageToken, pageSize)
		})
		if err != nil {
			return out, err
		}
		out = append(out, page.Channels...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// ListRecentUploads returns the newest uploads of a channel, one page only.
func (c *QuotaClient) ListRecentUploads(ctx context.Context, ch Channel, limit int) ([]VideoCandidate, error) {
	playlistID := ch.UploadsPlaylistID
	if playlistID == "" {
		playlistID = uploadsPlaylistID(ch.ID)
	}
	if playlistID == "" {
		return nil, fmt.Errorf("channel %s: %w (no uploads playlist)", ch.ID, ErrSourceUnavailable)
	}

	// Ask for a buffer above the cap so later filters still leave enough.
	pageSize := int64(min(apiBatchSize, max(5, limit*3)))
	page, err := callAPI(ctx, c, "playlistItems.list", costList, func(ctx context.Context) (PlaylistItemPage, error) {
		return c.api.PlaylistItems(ctx, playlistID, "", pageSize)
	})
	if err != nil {
		return nil, err
	}

	out := make([]VideoCandidate, 0, len(page.Items))
	for _, v := range page.Items {
		v.ChannelID = ch.ID
		if ch.Title != "" {
			v.ChannelTitle = ch.Title
		}
		if v.OwnerChannelTitle == "" {
			v.OwnerChannelTitle = v.ChannelTitle
		}
		v.Source = SourceSubscriptions
		out = append(out, v)
	}
	return out, nil
}

// ResolvePlaylist finds a playlist by ID, then by exact title among the
// user's playlists, then by exact title in public search.
func (c *QuotaClient) ResolvePlaylist(ctx context.Context, query string) (PlaylistInfo, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return PlaylistInfo{}, fmt.Errorf("%w: empty playlist name", ErrInvalidMode)
	}

	id := q
	if ref := ParseVideoRef(q); ref.Error == nil && ref.ContentType == ContentTypePlaylist {
		id = ref.ID
	}
	if IsValidPlaylistID(id) {
		type lookup struct {
			info  PlaylistInfo
			found bool
		}
		res, err := callAPI(ctx, c, "playlists.list", costList, func(ctx context.Context) (lookup, error) {
			info, found, err := c.api.Playlist(ctx, id)
			return lookup{info, found}, err
		})
		if err != nil {
			return PlaylistInfo{}, err
		}
		if !res.found {
			return PlaylistInfo{}, fmt.Errorf("playlist %s: %w", id, ErrSourceUnavailable)
		}
		return res.info, nil
	}

	pageToken := ""
	for {
		page, err := callAPI(ctx, c, "playlists.list", costList, func(ctx context.Context) (PlaylistPage, error) {
			return c.api.MyPlaylists(ctx, pageToken)
		})
		if err != nil {
			return PlaylistInfo{}, err
		}
		for _, p := range page.Playlists {
			if strings.EqualFold(strings.TrimSpace(p.Title), q) {
				return p, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	found, err := callAPI(ctx, c, "search.list", costSearch, func(ctx context.Context) ([]PlaylistInfo, error) {
		return c.api.SearchPlaylists(ctx, q, 5)
	})
	if err != nil {
		return PlaylistInfo{}, err
	}
	titles := make([]string, 0, len(found))
	for _, p := range found {
		if strings.EqualFold(strings.TrimSpace(p.Title), q) {
			return p, nil
		}
		titles = append(titles, fmt.Sprintf("%s (id: %s)", p.Title, p.ID))
	}
	if len(titles) > 0 {
		return PlaylistInfo{}, fmt.Errorf("playlist %q: %w; did you mean one of: %s",
			q, ErrSourceUnavailable, strings.Join(titles, ", "))
	}
	return PlaylistInfo{}, fmt.Errorf("playlist %q: %w", q, ErrSourceUnavailable)
}

// ListPlaylistVideos pages through a playlist up to maxItems entries. On
// quota exhaustion the returned *QuotaExhaustedError carries the items
// gathered so far.
func (c *QuotaClient) ListPlaylistVideos(ctx context.Context, playlistID string, maxItems int) ([]VideoCandidate, error) {
	var out []VideoCandidate
	pageToken := ""
	for maxItems <= 0 || len(out) < maxItems {
		page, err := callAPI(ctx, c, "playlistItems.list", costList, func(ctx context.Context) (PlaylistItemPage, error) {
			return c.api.PlaylistItems(ctx, playlistID, pageToken, apiBatchSize)
		})
		if err != nil {
			var qe *QuotaExhaustedError
			if errors.As(err, &qe) {
				qe.Partial = out
			}
			return nil, err
		}
		for _, v := range page.Items {
			v.Source = SourcePlaylist
			out = append(out, v)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	return out, nil
}

// VideoDetails looks videos up in batches of 50. On quota exhaustion the
// details fetched so far are returned alongside the error.
func (c *QuotaClient) VideoDetails(ctx context.Context, ids []string) (map[string]VideoDetails, error) {
	out := make(map[string]VideoDetails, len(ids))
	for batch := range slices.Chunk(ids, apiBatchSize) {
		details, err := callAPI(ctx, c, "videos.list", costList, func(ctx context.Context) ([]VideoDetails, error) {
			return c.api.Videos(ctx, batch)
		})
		if err != nil {
			return out, err
		}
		for _, d := range details {
			out[d.ID] = d
		}
	}
	return out, nil
}
