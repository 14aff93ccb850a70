package internal

import (
	"fmt"
	"strings"
	"time"
)

// ContentType represents the type of YouTube content an argument refers to
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	ContentTypeVideo
	ContentTypeShort
	ContentTypePlaylist
)

// String returns a human-readable representation of the content type
func (ct ContentType) String() string {
	switch ct {
	case ContentTypeVideo:
		return "video"
	case ContentTypeShort:
		return "short"
	case ContentTypePlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// ParsedArg represents the result of parsing a command line argument
type ParsedArg struct {
	ContentType   ContentType
	OriginalInput string
	ID            string
	Error         error
}

// IsValid returns true if the argument names a single video
func (p ParsedArg) IsValid() bool {
	return p.Error == nil && (p.ContentType == ContentTypeVideo || p.ContentType == ContentTypeShort)
}

func (p ParsedArg) String() string {
	if p.Error != nil {
		return fmt.Sprintf("ParsedArg{type=%s, input=%q, error=%v}", p.ContentType, p.OriginalInput, p.Error)
	}
	return fmt.Sprintf("ParsedArg{type=%s, id=%s}", p.ContentType, p.ID)
}

// Channel is a subscribed channel and its uploads playlist.
type Channel struct {
	ID                string
	Title             string
	UploadsPlaylistID string
}

// DurationClass tells long-form videos apart from Shorts.
type DurationClass int

const (
	DurationUnknown DurationClass = iota
	DurationNormal
	DurationShort
)

func (d DurationClass) String() string {
	switch d {
	case DurationNormal:
		return "normal"
	case DurationShort:
		return "short"
	default:
		return "unknown"
	}
}

// Source records how a candidate was found.
type Source string

const (
	SourceSubscriptions Source = "subscriptions"
	SourcePlaylist      Source = "playlist"
	SourceExplicit      Source = "explicit"
)

// VideoCandidate is a video considered for processing in the current run.
type VideoCandidate struct {
	ID                string
	Title             string
	ChannelID         string
	ChannelTitle      string
	OwnerChannelTitle string
	PublishedAt       time.Time
	Duration          time.Duration
	DurationClass     DurationClass
	Source            Source
}

// URL returns the watch URL of the candidate
func (v VideoCandidate) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// DisplayChannel prefers the owner of the video over the playlist owner.
func (v VideoCandidate) DisplayChannel() string {
	if v.OwnerChannelTitle != "" {
		return v.OwnerChannelTitle
	}
	if v.ChannelTitle != "" {
		return v.ChannelTitle
	}
	return "Unknown"
}

// Outcome is the terminal classification of one processing attempt.
type Outcome string

const (
	OutcomeSummarized   Outcome = "summarized"
	OutcomeNoTranscript Outcome = "no_transcript"
	OutcomeError        Outcome = "error"
	OutcomeSeeded       Outcome = "seeded"
)

// ParseOutcome validates an outcome name given on the command line
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeSummarized, OutcomeNoTranscript, OutcomeError, OutcomeSeeded:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome: %q", s)
}

// ProcessedRecord is the durable state kept per video.
type ProcessedRecord struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	NotePath    string    `json:"note_path,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Done reports whether the video must never be processed again.
func (r ProcessedRecord) Done() bool {
	return r.Outcome == OutcomeSummarized || r.Outcome == OutcomeSeeded
}

// TranscriptStatus classifies a transcript lookup.
type TranscriptStatus int

// The zero value is TranscriptUnknown so a result that was never classified
// is not mistaken for an available transcript.
const (
	TranscriptUnknown TranscriptStatus = iota
	TranscriptAvailable
	TranscriptUnavailable
	TranscriptBlocked
)

func (s TranscriptStatus) String() string {
	switch s {
	case TranscriptAvailable:
		return "available"
	case TranscriptUnavailable:
		return "unavailable"
	case TranscriptBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Reasons a transcript is unavailable. These are properties of the video.
const (
	ReasonDisabledByUploader = "disabled_by_uploader"
	ReasonPrivateOrUnlisted  = "private_or_unlisted"
	ReasonNoTranscript       = "no_transcript_exists"
)

// Segment is one caption line and its start offset.
type Segment struct {
	Text  string
	Start time.Duration
}

// TranscriptResult is the classified outcome of a transcript lookup.
type TranscriptResult struct {
	VideoID   string
	Status    TranscriptStatus
	Reason    string
	Language  string
	Generated bool
	Segments  []Segment
}

// classify turns a result that must not reach a summarizer into an error.
func (t TranscriptResult) classify() error {
	switch t.Status {
	case TranscriptBlocked:
		return fmt.Errorf("%w: %s", ErrBlocked, t.Reason)
	case TranscriptUnknown:
		return fmt.Errorf("transcript for %s has no status", t.VideoID)
	}
	return nil
}

// Text joins segments into a single line of prose.
func (t TranscriptResult) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Backend names a summarizer implementation.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "openai"
)

// SummaryArtifact is the structured summary handed to the note writer.
type SummaryArtifact struct {
	VideoID     string
	Title       string
	TLDR        string
	KeyPoints   []string
	ActionItems []string
	Quote       string
	Backend     Backend
}
