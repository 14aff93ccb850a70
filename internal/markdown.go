package internal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NoteWriter persists a finished summary and returns where it went.
type NoteWriter interface {
	Write(video VideoCandidate, transcript TranscriptResult, summary SummaryArtifact) (string, error)
}

// noteFrontMatter is the YAML header of every note.
type noteFrontMatter struct {
	Title               string   `yaml:"title"`
	Channel             string   `yaml:"channel"`
	VideoID             string   `yaml:"video_id"`
	PublishedAt         string   `yaml:"published_at,omitempty"`
	SourceURL           string   `yaml:"source_url"`
	Duration            string   `yaml:"duration"`
	TranscriptLanguage  string   `yaml:"transcript_language"`
	TranscriptGenerated bool     `yaml:"transcript_generated"`
	SummaryBackend      string   `yaml:"summary_backend"`
	Tags                []string `yaml:"tags,omitempty"`
}

// MarkdownWriter writes one Markdown note per video into dir, named
// "TITLE - YYYY-MM-DD.md".
type MarkdownWriter struct {
	dir string
	now func() time.Time
}

func NewMarkdownWriter(dir string) *MarkdownWriter {
	return &MarkdownWriter{dir: dir, now: time.Now}
}

func (w *MarkdownWriter) Write(video VideoCandidate, transcript TranscriptResult, summary SummaryArtifact) (string, error) {
	content, err := RenderNote(video, transcript, summary)
	if err != nil {
		return "", err
	}
	path := w.notePath(video)
	if err := writeFileAtomic(path, content); err != nil {
		return "", fmt.Errorf("writing note: %w", err)
	}
	return path, nil
}

// NoteFilename returns the base name of the note for video.
func NoteFilename(video VideoCandidate, fallbackDate time.Time) string {
	title := sanitizeFilename(video.Title)
	if title == "" {
		title = video.ID
	}
	date := fallbackDate
	if !video.PublishedAt.IsZero() {
		date = video.PublishedAt
	}
	return fmt.Sprintf("%s - %s.md", title, date.Local().Format("2006-01-02"))
}

// notePath avoids clobbering a note of a different video that happens to
// share title and date.
func (w *MarkdownWriter) notePath(video VideoCandidate) string {
	path := filepath.Join(w.dir, NoteFilename(video, w.now()))
	existing, err := os.ReadFile(path)
	if err != nil || noteVideoID(existing) == video.ID {
		return path
	}
	return strings.TrimSuffix(path, ".md") + " (" + video.ID + ").md"
}

func noteVideoID(note []byte) string {
	fm, _, ok := splitFrontMatter(note)
	if !ok {
		return ""
	}
	var meta noteFrontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return ""
	}
	return meta.VideoID
}

func splitFrontMatter(note []byte) ([]byte, []byte, bool) {
	const delim = "---\n"
	if !bytes.HasPrefix(note, []byte(delim)) {
		return nil, note, false
	}
	rest := note[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil, note, false
	}
	return rest[:end+1], rest[end+1+len(delim):], true
}

// RenderNote produces the note body: YAML front matter, header, summary
// sections and the full transcript.
func RenderNote(video VideoCandidate, transcript TranscriptResult, summary SummaryArtifact) ([]byte, error) {
	title := strings.TrimSpace(video.Title)
	if title == "" {
		title = video.ID
	}
	published := ""
	if !video.PublishedAt.IsZero() {
		published = video.PublishedAt.UTC().Format(time.RFC3339)
	}
	lang := transcript.Language
	if lang == "" {
		lang = "unknown"
	}

	fm, err := yaml.Marshal(noteFrontMatter{
		Title:               title,
		Channel:             video.DisplayChannel(),
		VideoID:             video.ID,
		PublishedAt:         published,
		SourceURL:           video.URL(),
		Duration:            formatDuration(video.Duration),
		TranscriptLanguage:  lang,
		TranscriptGenerated: transcript.Generated,
		SummaryBackend:      string(summary.Backend),
		Tags:                []string{"youtube"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Channel:** %s  \n", video.DisplayChannel())
	fmt.Fprintf(&b, "**Duration:** %s  \n", formatDuration(video.Duration))
	if published != "" {
		fmt.Fprintf(&b, "**Published:** %s  \n", published)
	}
	fmt.Fprintf(&b, "**Link:** %s\n\n", video.URL())

	b.WriteString("## TL;DR\n\n")
	b.WriteString(strings.TrimSpace(summary.TLDR))
	b.WriteString("\n\n")

	writeList(&b, "Key takeaways", summary.KeyPoints)
	writeList(&b, "Follow-up actions", summary.ActionItems)

	if q := strings.TrimSpace(summary.Quote); q != "" {
		fmt.Fprintf(&b, "## Quote\n\n> %s\n\n", q)
	}

	b.WriteString("## Transcript\n\n")
	b.WriteString(transcript.Text())
	b.WriteString("\n")

	return []byte(b.String()), nil
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

// StripFrontMatter returns the note body without its YAML header.
func StripFrontMatter(note []byte) string {
	_, body, _ := splitFrontMatter(note)
	return string(body)
}
