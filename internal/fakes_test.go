package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps retry tests from sleeping.
var fastRetry = RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}

func apiError(code int, reason string) error {
	e := &googleapi.Error{Code: code, Message: reason}
	if reason != "" {
		e.Errors = []googleapi.ErrorItem{{Reason: reason}}
	}
	return e
}

// fakeDataAPI serves canned listings and counts calls per method.
type fakeDataAPI struct {
	subs      []Channel
	uploads   map[string][]VideoCandidate // by playlist ID
	channels  map[string]Channel
	mine      []PlaylistInfo
	public    []PlaylistInfo
	playlists map[string]PlaylistInfo
	videos    map[string]VideoDetails

	// errs queues errors per method; each call pops one.
	errs  map[string][]error
	calls map[string]int
}

func newFakeDataAPI() *fakeDataAPI {
	return &fakeDataAPI{
		uploads:   map[string][]VideoCandidate{},
		channels:  map[string]Channel{},
		playlists: map[string]PlaylistInfo{},
		videos:    map[string]VideoDetails{},
		errs:      map[string][]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeDataAPI) fail(method string, errs ...error) {
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakeDataAPI) next(method string) error {
	f.calls[method]++
	q := f.errs[method]
	if len(q) == 0 {
		return nil
	}
	f.errs[method] = q[1:]
	return q[0]
}

func (f *fakeDataAPI) totalCalls() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func paginate[T any](items []T, token string, size int64) ([]T, string) {
	start, _ := strconv.Atoi(token)
	if start > len(items) {
		start = len(items)
	}
	end := min(start+int(size), len(items))
	nextToken := ""
	if end < len(items) {
		nextToken = strconv.Itoa(end)
	}
	return items[start:end], nextToken
}

func (f *fakeDataAPI) Subscriptions(_ context.Context, _ string, pageToken string, maxResults int64) (SubscriptionPage, error) {
	if err := f.next("subscriptions"); err != nil {
		return SubscriptionPage{}, err
	}
	items, next := paginate(f.subs, pageToken, maxResults)
	return SubscriptionPage{Channels: items, NextPageToken: next}, nil
}

func (f *fakeDataAPI) Channels(_ context.Context, ids []string) ([]Channel, error) {
	if err := f.next("channels"); err != nil {
		return nil, err
	}
	var out []Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeDataAPI) PlaylistItems(_ context.Context, playlistID, pageToken string, maxResults int64) (PlaylistItemPage, error) {
	if err := f.next("playlistItems"); err != nil {
		return PlaylistItemPage{}, err
	}
	items, ok := f.uploads[playlistID]
	if !ok {
		return PlaylistItemPage{}, apiError(404, "playlistNotFound")
	}
	got, next := paginate(items, pageToken, maxResults)
	return PlaylistItemPage{Items: append([]VideoCandidate(nil), got...), NextPageToken: next}, nil
}

func (f *fakeDataAPI) MyPlaylists(_ context.Context, pageToken string) (PlaylistPage, error) {
	if err := f.next("playlists"); err != nil {
		return PlaylistPage{}, err
	}
	items, next := paginate(f.mine, pageToken, 50)
	return PlaylistPage{Playlists: items, NextPageToken: next}, nil
}

func (f *fakeDataAPI) Playlist(_ context.Context, id string) (PlaylistInfo, bool, error) {
	if err := f.next("playlist"); err != nil {
		return PlaylistInfo{}, false, err
	}
	p, ok := f.playlists[id]
	return p, ok, nil
}

func (f *fakeDataAPI) SearchPlaylists(_ context.Context, _ string, _ int64) ([]PlaylistInfo, error) {
	if err := f.next("search"); err != nil {
		return nil, err
	}
	return f.public, nil
}

func (f *fakeDataAPI) Videos(_ context.Context, ids []string) ([]VideoDetails, error) {
	if err := f.next("videos"); err != nil {
		return nil, err
	}
	var out []VideoDetails
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func newTestQuotaClient(api DataAPI, budget int) *QuotaClient {
	return NewQuotaClient(api, QuotaClientOptions{
		Budget: budget,
		Retry:  fastRetry,
		Logger: discardLogger(),
	})
}

// fakeFetcher returns canned transcript results per video.
type fakeFetcher struct {
	results map[string]TranscriptResult
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (TranscriptResult, error) {
	f.calls = append(f.calls, id)
	if err := f.errs[id]; err != nil {
		return TranscriptResult{VideoID: id}, err
	}
	if res, ok := f.results[id]; ok {
		return res, nil
	}
	return availableTranscript(id), nil
}

func availableTranscript(id string) TranscriptResult {
	return TranscriptResult{
		VideoID:  id,
		Status:   TranscriptAvailable,
		Language: "en",
		Segments: []Segment{
			{Text: "Welcome back to the channel, today we are building a small garden shed."},
			{Text: "First we level the ground and lay a gravel base for drainage.", Start: 5 * time.Second},
			{Text: "Then the floor frame goes on top of the gravel base.", Start: 10 * time.Second},
		},
	}
}

// fakeSummarizer fails for the listed videos.
type fakeSummarizer struct {
	failFor map[string]bool
	calls   []string
}

func (s *fakeSummarizer) Backend() Backend { return BackendLocal }

func (s *fakeSummarizer) Summarize(_ context.Context, v VideoCandidate, _ TranscriptResult) (SummaryArtifact, error) {
	s.calls = append(s.calls, v.ID)
	if s.failFor[v.ID] {
		return SummaryArtifact{}, errors.New("model unavailable")
	}
	return SummaryArtifact{VideoID: v.ID, Title: v.Title, TLDR: "summary of " + v.ID, Backend: BackendLocal}, nil
}

// memoryWriter keeps notes in memory.
type memoryWriter struct {
	notes   map[string]SummaryArtifact
	failFor map[string]bool
}

func (w *memoryWriter) Write(v VideoCandidate, _ TranscriptResult, s SummaryArtifact) (string, error) {
	if w.failFor[v.ID] {
		return "", fmt.Errorf("disk full")
	}
	if w.notes == nil {
		w.notes = map[string]SummaryArtifact{}
	}
	w.notes[v.ID] = s
	return "/notes/" + v.ID + ".md", nil
}

// staticSource hands out a fixed discovery result.
type staticSource struct {
	result DiscoveryResult
	err    error
	used   int
}

func (s *staticSource) Discover(context.Context, Mode, DiscoverOptions) (DiscoveryResult, error) {
	return s.result, s.err
}

func (s *staticSource) QuotaUsed() int { return s.used }

// vid builds a candidate published the given number of days before testNow.
func vid(id string, daysAgo int) VideoCandidate {
	return VideoCandidate{
		ID:           id,
		Title:        "Video " + id,
		ChannelTitle: "Channel",
		PublishedAt:  testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Duration:     10 * time.Minute,
	}
}
