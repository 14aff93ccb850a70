package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// PlaylistInfo identifies a playlist resolved by ID or title.
type PlaylistInfo struct {
	ID           string
	Title        string
	ChannelTitle string
	ItemCount    int64
}

// VideoDetails is the subset of videos.list the pipeline needs.
type VideoDetails struct {
	ID           string
	Title        string
	ChannelID    string
	ChannelTitle string
	PublishedAt  time.Time
	Duration     time.Duration
}

type SubscriptionPage struct {
	Channels      []Channel
	NextPageToken string
}

type PlaylistItemPage struct {
	Items         []VideoCandidate
	NextPageToken string
}

type PlaylistPage struct {
	Playlists     []PlaylistInfo
	NextPageToken string
}

// DataAPI is the narrow slice of the YouTube Data API v3 used by the client.
// Each method maps to exactly one remote request.
type DataAPI interface {
	Subscriptions(ctx context.Context, order, pageToken string, maxResults int64) (SubscriptionPage, error)
	Channels(ctx context.Context, ids []string) ([]Channel, error)
	PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int64) (PlaylistItemPage, error)
	MyPlaylists(ctx context.Context, pageToken string) (PlaylistPage, error)
	Playlist(ctx context.Context, id string) (PlaylistInfo, bool, error)
	SearchPlaylists(ctx context.Context, query string, maxResults int64) ([]PlaylistInfo, error)
	Videos(ctx context.Context, ids []string) ([]VideoDetails, error)
}

// youtubeDataAPI implements DataAPI with the official client library.
type youtubeDataAPI struct {
	svc *youtube.Service
}

// NewYouTubeService builds an authenticated Data API client from an OAuth
// client secret and a previously authorized token. The consent flow is not
// run here; the token must already exist.
func NewYouTubeService(ctx context.Context, clientSecretFile, tokenFile string) (DataAPI, error) {
	if clientSecretFile == "" || tokenFile == "" {
		return nil, fmt.Errorf("%w: client_secret_file and token_file must be set", ErrMissingCredentials)
	}

	secret, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading client secret: %v", ErrMissingCredentials, err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, youtube.YoutubeReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	ts := oauthCfg.TokenSource(ctx, token)
	svc, err := youtube.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &youtubeDataAPI{svc: svc}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading token: %v", ErrMissingCredentials, err)
	}
	// Accept both the oauth2.Token layout and the google-auth "authorized
	// user" layout written by other tools.
	var raw struct {
		AccessToken  string    `json:"access_token"`
		Token        string    `json:"token"`
		TokenType    string    `json:"token_type"`
		RefreshToken string    `json:"refresh_token"`
		Expiry       time.Time `json:"expiry"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing token %s: %w", path, err)
	}
	tok := &oauth2.Token{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		RefreshToken: raw.RefreshToken,
		Expiry:       raw.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = raw.Token
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token %s has neither access nor refresh token", ErrMissingCredentials, path)
	}
	return tok, nil
}

func (y *youtubeDataAPI) Subscriptions(ctx context.Context, order, pageToken string, maxResults int64) (SubscriptionPage, error) {
	call := y.svc.Subscriptions.List([]string{"snippet"}).
		Mine(true).
		Order(order).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return SubscriptionPage{}, err
	}

	page := SubscriptionPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil {
			continue
		}
		id := item.Snippet.ResourceId.ChannelId
		page.Channels = append(page.Channels, Channel{
			ID:                id,
			Title:             item.Snippet.Title,
			UploadsPlaylistID: uploadsPlaylistID(id),
		})
	}
	return page, nil
}

func (y *youtubeDataAPI) Channels(ctx context.Context, ids []string) ([]Channel, error) {
	resp, err := y.svc.Channels.List([]string{"snippet", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		ch := Channel{ID: item.Id}
		if item.Snippet != nil {
			ch.Title = item.Snippet.Title
		}
		if item.ContentDetails != nil && item.ContentDetails.RelatedPlaylists != nil {
			ch.UploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
		}
		out = append(out, ch)
	}
	return out, nil
}

func (y *youtubeDataAPI) PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int64) (PlaylistItemPage, error) {
	call := y.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return PlaylistItemPage{}, err
	}

	page := PlaylistItemPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.ContentDetails == nil || item.Snippet == nil {
			continue
		}
		// Private and deleted entries have no publish date.
		published, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt)
		if err != nil {
			continue
		}
		page.Items = append(page.Items, VideoCandidate{
			ID:                item.ContentDetails.VideoId,
			Title:             item.Snippet.Title,
			ChannelID:         item.Snippet.VideoOwnerChannelId,
			ChannelTitle:      item.Snippet.ChannelTitle,
			OwnerChannelTitle: item.Snippet.VideoOwnerChannelTitle,
			PublishedAt:       published,
		})
	}
	return page, nil
}

func (y *youtubeDataAPI) MyPlaylists(ctx context.Context, pageToken string) (PlaylistPage, error) {
	call := y.svc.Playlists.List([]string{"snippet", "contentDetails"}).
		Mine(true).
		MaxResults(50).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return PlaylistPage{}, err
	}

	page := PlaylistPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		page.Playlists = append(page.Playlists, playlistInfo(item))
	}
	return page, nil
}

func (y *youtubeDataAPI) Playlist(ctx context.Context, id string) (PlaylistInfo, bool, error) {
	resp, err := y.svc.Playlists.List([]string{"snippet", "contentDetails"}).
		Id(id).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return PlaylistInfo{}, false, err
	}
	if len(resp.Items) == 0 {
		return PlaylistInfo{}, false, nil
	}
	return playlistInfo(resp.Items[0]), true, nil
}

func playlistInfo(item *youtube.Playlist) PlaylistInfo {
	info := PlaylistInfo{ID: item.Id}
	if item.Snippet != nil {
		info.Title = item.Snippet.Title
		info.ChannelTitle = item.Snippet.ChannelTitle
	}
	if item.ContentDetails != nil {
		info.ItemCount = item.ContentDetails.ItemCount
	}
	return info
}

func (y *youtubeDataAPI) SearchPlaylists(ctx context.Context, query string, maxResults int64) ([]PlaylistInfo, error) {
	resp, err := y.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("playlist").
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]PlaylistInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.PlaylistId == "" {
			continue
		}
		info := PlaylistInfo{ID: item.Id.PlaylistId}
		if item.Snippet != nil {
			info.Title = item.Snippet.Title
			info.ChannelTitle = item.Snippet.ChannelTitle
		}
		out = append(out, info)
	}
	return out, nil
}

func (y *youtubeDataAPI) Videos(ctx context.Context, ids []string) ([]VideoDetails, error) {
	resp, err := y.svc.Videos.List([]string{"snippet", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]VideoDetails, 0, len(resp.Items))
	for _, item := range resp.Items {
		d := VideoDetails{ID: item.Id}
		if item.Snippet != nil {
			d.Title = item.Snippet.Title
			d.ChannelID = item.Snippet.ChannelId
			d.ChannelTitle = item.Snippet.ChannelTitle
			if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				d.PublishedAt = ts
			}
		}
		if item.ContentDetails != nil {
			d.Duration = parseISODuration(strings.TrimSpace(item.ContentDetails.Duration))
		}
		out = append(out, d)
	}
	return out, nil
}
