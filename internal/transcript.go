package internal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"
)

// TranscriptFetcher returns a classified transcript for one video. A non-nil
// error means a transient failure worth retrying on a later run; Blocked and
// Unavailable are results, not errors.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (TranscriptResult, error)
}

const (
	defaultWatchBase     = "https://www.youtube.com"
	playerResponseMarker = "ytInitialPlayerResponse = "
	watchPageLimit       = 6 * 1024 * 1024
	timedTextLimit       = 4 * 1024 * 1024
	browserUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Markers of YouTube's anti-bot interstitials.
var blockMarkers = []string{
	"g-recaptcha",
	"www.google.com/sorry",
	"confirm you’re not a bot",
	"confirm you're not a bot",
	"unusual traffic from your computer network",
}

// RetrieverOptions configures Retriever.
type RetrieverOptions struct {
	Languages        []string
	AcceptNonEnglish bool
	CookiesFile      string
	Timeout          time.Duration
	Interval         time.Duration
	BaseURL          string
	HTTPClient       *http.Client
	Fallback         TranscriptFetcher
	Retry            RetryConfig
	Logger           *slog.Logger
}

// Retriever reads caption tracks from the public watch page.
type Retriever struct {
	client    *http.Client
	baseURL   string
	languages []string
	acceptAny bool
	timeout   time.Duration
	limiter   *rate.Limiter
	fallback  TranscriptFetcher
	retry     RetryConfig
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

func NewRetriever(opts RetrieverOptions) (*Retriever, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultWatchBase
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"en", "en-US", "en-GB"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialWait == 0 {
		opts.Retry = RetryConfig{MaxRetries: 2, InitialWait: 2 * time.Second, MaxWait: 10 * time.Second, Multiplier: 2}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if opts.CookiesFile != "" {
		jar, err := loadCookieJar(opts.CookiesFile, opts.BaseURL)
		if err != nil {
			return nil, err
		}
		c := *client
		c.Jar = jar
		client = &c
	}

	limit := rate.Every(opts.Interval)
	if opts.Interval <= 0 {
		limit = rate.Inf
	}

	return &Retriever{
		client:    client,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		languages: opts.Languages,
		acceptAny: opts.AcceptNonEnglish,
		timeout:   opts.Timeout,
		limiter:   rate.NewLimiter(limit, 1),
		fallback:  opts.Fallback,
		retry:     opts.Retry,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    opts.Logger,
	}, nil
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

// Fetch classifies the transcript of videoID. Transient failures fall back to
// yt-dlp when configured.
func (r *Retriever) Fetch(ctx context.Context, videoID string) (TranscriptResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return TranscriptResult{}, err
	}

	res, err := r.fetch(ctx, videoID)
	if err == nil || r.fallback == nil || ctx.Err() != nil {
		return res, err
	}

	r.logger.Warn("transcript fetch failed, trying yt-dlp", slog.String("id", videoID), slog.Any("error", err))
	fbCtx, cancel := context.WithTimeout(ctx, fallbackTimeout(r.timeout))
	defer cancel()
	fb, fbErr := r.fallback.Fetch(fbCtx, videoID)
	if fbErr != nil {
		r.logger.Warn("yt-dlp fallback failed", slog.String("id", videoID), slog.Any("error", fbErr))
		return res, err
	}
	// A block seen by yt-dlp is as authoritative as one seen on the page.
	if fb.Status == TranscriptAvailable || fb.Status == TranscriptBlocked {
		return fb, nil
	}
	return res, err
}

// fallbackTimeout bounds a yt-dlp run. It covers a subtitle download plus
// the extractor start-up, so it is a multiple of the page timeout.
func fallbackTimeout(page time.Duration) time.Duration {
	if page <= 0 {
		page = 30 * time.Second
	}
	return 3 * page
}

func (r *Retriever) fetch(ctx context.Context, videoID string) (TranscriptResult, error) {
	res := TranscriptResult{VideoID: videoID}

	body, status, err := r.get(ctx, r.baseURL+"/watch?v="+url.QueryEscape(videoID)+"&hl=en", watchPageLimit)
	if err != nil {
		return res, fmt.Errorf("watch page: %w", err)
	}
	if status == http.StatusTooManyRequests {
		res.Status = TranscriptBlocked
		res.Reason = "rate_limited"
		return res, nil
	}
	if status != http.StatusOK {
		return res, fmt.Errorf("watch page: unexpected status %d", status)
	}

	player, err := extractPlayerResponse(body)
	if err != nil {
		if containsBlockMarker(body) {
			res.Status = TranscriptBlocked
			res.Reason = "bot_check"
			return res, nil
		}
		return res, err
	}

	if ps := player.PlayabilityStatus; ps != nil {
		switch ps.Status {
		case "", "OK":
		case "LOGIN_REQUIRED":
			if containsBlockMarker([]byte(ps.Reason)) {
				res.Status = TranscriptBlocked
				res.Reason = "bot_check"
				return res, nil
			}
			return unavailable(res, ReasonPrivateOrUnlisted), nil
		case "ERROR", "UNPLAYABLE":
			return unavailable(res, ReasonPrivateOrUnlisted), nil
		default:
			// LIVE_STREAM_OFFLINE and friends have nothing to transcribe yet.
			return unavailable(res, ReasonNoTranscript), nil
		}
	}

	if player.Captions == nil || len(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return unavailable(res, ReasonDisabledByUploader), nil
	}

	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	track, ok, usable := pickTrack(tracks, r.languages, r.acceptAny)
	if !usable {
		return res, errors.New("all caption tracks require a PoToken")
	}
	if !ok {
		return unavailable(res, ReasonNoTranscript), nil
	}

	trackURL := track.BaseURL
	if strings.HasPrefix(trackURL, "/") {
		trackURL = r.baseURL + trackURL
	}
	xmlBody, status, err := r.get(ctx, trackURL, timedTextLimit)
	if err != nil {
		return res, fmt.Errorf("timedtext: %w", err)
	}
	if status == http.StatusTooManyRequests {
		res.Status = TranscriptBlocked
		res.Reason = "timedtext_rate_limited"
		return res, nil
	}
	if status != http.StatusOK {
		return res, fmt.Errorf("timedtext: unexpected status %d", status)
	}

	segments, err := r.parseTimedText(xmlBody)
	if err != nil {
		return res, err
	}
	if len(segments) == 0 {
		// An empty body usually means the track wanted a PoToken after all.
		return res, errors.New("empty caption track")
	}

	res.Status = TranscriptAvailable
	res.Language = track.LanguageCode
	res.Generated = track.Kind == "asr"
	res.Segments = segments
	return res, nil
}

func unavailable(res TranscriptResult, reason string) TranscriptResult {
	res.Status = TranscriptUnavailable
	res.Reason = reason
	return res
}

// get fetches u, retrying 5xx and network failures. 429 is returned to the
// caller as a status because it means the network path is blocked.
func (r *Retriever) get(ctx context.Context, u string, limit int64) ([]byte, int, error) {
	type page struct {
		body   []byte
		status int
	}
	p, err := RetryDo(ctx, r.retry, isTransientNetErr, func() (page, error) {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
		if err != nil {
			return page{}, err
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		resp, err := r.client.Do(req)
		if err != nil {
			return page{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return page{}, &httpStatusError{StatusCode: resp.StatusCode}
		}
		if resp.Request != nil && resp.Request.URL != nil && strings.HasPrefix(resp.Request.URL.Path, "/sorry") {
			return page{status: http.StatusTooManyRequests}, nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return page{}, err
		}
		return page{body: body, status: resp.StatusCode}, nil
	})
	return p.body, p.status, err
}

func containsBlockMarker(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, m := range blockMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return true
		}
	}
	return false
}

// extractPlayerResponse finds the ytInitialPlayerResponse assignment among
// the page's script tags.
func extractPlayerResponse(page []byte) (playerResponse, error) {
	var player playerResponse

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return player, fmt.Errorf("parsing watch page: %w", err)
	}

	var raw []byte
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, playerResponseMarker)
		if idx < 0 {
			return true
		}
		raw = extractJSON([]byte(text[idx+len(playerResponseMarker):]))
		return raw == nil
	})
	if raw == nil {
		return player, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	if err := json.Unmarshal(raw, &player); err != nil {
		return player, fmt.Errorf("decoding ytInitialPlayerResponse: %w", err)
	}
	return player, nil
}

// extractJSON returns the balanced JSON object at the start of b.
func extractJSON(b []byte) []byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack prefers a human track in a preferred language, then an
// auto-generated one, then (if allowed) any human track, then any track.
// usable is false when every track needs a PoToken.
func pickTrack(tracks []captionTrack, langs []string, acceptAny bool) (track captionTrack, ok bool, usable bool) {
	candidates := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return captionTrack{}, false, false
	}

	for _, generated := range []bool{false, true} {
		for _, lang := range langs {
			for _, t := range candidates {
				if strings.EqualFold(t.LanguageCode, lang) && (t.Kind == "asr") == generated {
					return t, true, true
				}
			}
		}
	}
	if !acceptAny {
		return captionTrack{}, false, true
	}
	for _, t := range candidates {
		if t.Kind != "asr" {
			return t, true, true
		}
	}
	return candidates[0], true, true
}

type timedTextDoc struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Body  string `xml:",innerxml"`
	} `xml:"text"`
	Paragraphs []struct {
		T    string `xml:"t,attr"`
		Body string `xml:",innerxml"`
	} `xml:"body>p"`
}

// parseTimedText accepts both the legacy <transcript><text start=…> layout
// and the srv3 <timedtext><body><p t=…> layout.
func (r *Retriever) parseTimedText(data []byte) ([]Segment, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing timedtext XML: %w", err)
	}

	var segments []Segment
	for _, t := range doc.Texts {
		secs, _ := strconv.ParseFloat(t.Start, 64)
		if text := r.cleanCaption(t.Body); text != "" {
			segments = append(segments, Segment{Text: text, Start: time.Duration(secs * float64(time.Second))})
		}
	}
	for _, p := range doc.Paragraphs {
		ms, _ := strconv.ParseInt(p.T, 10, 64)
		if text := r.cleanCaption(p.Body); text != "" {
			segments = append(segments, Segment{Text: text, Start: time.Duration(ms) * time.Millisecond})
		}
	}
	return segments, nil
}

// cleanCaption strips markup and entities, which are often double-escaped.
func (r *Retriever) cleanCaption(s string) string {
	s = r.sanitizer.Sanitize(html.UnescapeString(s))
	s = html.UnescapeString(html.UnescapeString(s))
	return strings.Join(strings.Fields(s), " ")
}

// loadCookieJar reads a Netscape cookies.txt export into a jar scoped to base.
func loadCookieJar(path, base string) (http.CookieJar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cookies file: %w", err)
	}
	defer f.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		c := &http.Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cookies file: %w", err)
	}
	jar.SetCookies(baseURL, cookies)
	return jar, nil
}
