package internal

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	videoIDRE    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	playlistIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	isoDuration  = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
)

var youtubeHosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be"}

// ParseVideoRef normalizes a YouTube URL or bare ID into a ParsedArg
func ParseVideoRef(arg string) ParsedArg {
	input := strings.TrimSpace(arg)
	parsed := ParsedArg{OriginalInput: arg}

	if IsValidYouTubeID(input) {
		parsed.ContentType = ContentTypeVideo
		parsed.ID = input
		return parsed
	}

	if !strings.Contains(input, "://") && (strings.HasPrefix(input, "youtu") || strings.HasPrefix(input, "www.") || strings.HasPrefix(input, "m.")) {
		input = "https://" + input
	}

	if strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://") {
		u, err := url.Parse(input)
		if err != nil {
			parsed.Error = fmt.Errorf("parsing URL: %w", err)
			return parsed
		}
		if !slices.Contains(youtubeHosts, strings.ToLower(u.Host)) {
			parsed.Error = fmt.Errorf("not a YouTube URL: %s", arg)
			return parsed
		}

		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case strings.EqualFold(u.Host, "youtu.be") && len(parts) > 0 && IsValidYouTubeID(parts[0]):
			parsed.ContentType = ContentTypeVideo
			parsed.ID = parts[0]
		case len(parts) == 2 && parts[0] == "shorts" && IsValidYouTubeID(parts[1]):
			parsed.ContentType = ContentTypeShort
			parsed.ID = parts[1]
		case len(parts) == 2 && (parts[0] == "live" || parts[0] == "embed") && IsValidYouTubeID(parts[1]):
			parsed.ContentType = ContentTypeVideo
			parsed.ID = parts[1]
		case IsValidYouTubeID(u.Query().Get("v")):
			parsed.ContentType = ContentTypeVideo
			parsed.ID = u.Query().Get("v")
		case IsValidPlaylistID(u.Query().Get("list")):
			parsed.ContentType = ContentTypePlaylist
			parsed.ID = u.Query().Get("list")
		default:
			parsed.Error = fmt.Errorf("could not extract video ID from URL: %s", arg)
		}
		return parsed
	}

	if IsValidPlaylistID(input) {
		parsed.ContentType = ContentTypePlaylist
		parsed.ID = input
		return parsed
	}

	parsed.Error = fmt.Errorf("'%s' doesn't look like a YouTube URL or video ID", arg)
	return parsed
}

// IsValidYouTubeID checks if a string looks like a valid YouTube video ID
func IsValidYouTubeID(id string) bool {
	return videoIDRE.MatchString(id)
}

// IsLikelyCommand reports whether a short argument is a mistyped subcommand
// rather than a video reference
func IsLikelyCommand(arg string) bool {
	return len(arg) <= 10 && !ParseVideoRef(arg).IsValid()
}

// IsValidPlaylistID checks if a string looks like a valid YouTube playlist ID
func IsValidPlaylistID(id string) bool {
	// Common playlist prefixes: PL, UU, FL, RD, etc.
	playlistPrefixes := []string{"PL", "UU", "FL", "RD", "LP", "BP", "QL", "SV", "EL", "LL", "WL"}

	for _, prefix := range playlistPrefixes {
		if strings.HasPrefix(id, prefix) && len(id) >= 12 && len(id) <= 64 {
			return playlistIDRE.MatchString(id)
		}
	}

	// Music playlists (OLAK5uy_, RDCLAK5uy_)
	if strings.HasPrefix(id, "OLAK5uy_") || strings.HasPrefix(id, "RDCLAK5uy_") {
		return len(id) == 40 && playlistIDRE.MatchString(id)
	}

	return false
}

// uploadsPlaylistID derives a channel's uploads playlist from its channel ID.
func uploadsPlaylistID(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:]
	}
	return ""
}

// parseISODuration converts an ISO 8601 duration such as PT1H2M3S.
func parseISODuration(s string) time.Duration {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	return d
}

// formatDuration renders a duration as M:SS or H:MM:SS
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "Unknown"
	}
	total := int(d.Seconds())
	hours, minutes, secs := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// sanitizeFilename strips characters that are invalid in file names on common filesystems
func sanitizeFilename(title string) string {
	clean := html.UnescapeString(title)
	clean = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, r) || r < 0x20 {
			return -1
		}
		return r
	}, clean)
	clean = strings.Join(strings.Fields(clean), " ")
	if len([]rune(clean)) > 120 {
		clean = string([]rune(clean)[:120])
	}
	return strings.TrimSpace(clean)
}

// getTerminalWidth gets terminal width with fallback
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}

	if width > 10 {
		return width - 4
	}

	return width
}

// RenderMarkdown renders markdown content with glamour
func RenderMarkdown(content string) (string, error) {
	width := getTerminalWidth()
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(termenv.EnvColorProfile()),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}

	renderedContent, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	return renderedContent, nil
}

// FileExists checks if a file exists
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// ValidateModel checks if the model is supported
func ValidateModel(model string) error {
	supportedModels := []string{"gpt-4o", "gpt-4o-mini", "o4-mini", "gpt-4.1-nano", "gpt-4.1-mini"}
	if slices.Contains(supportedModels, model) {
		return nil
	}
	return fmt.Errorf("unsupported model: %s (supported: %s)", model, strings.Join(supportedModels, ", "))
}

// EnsureDirs creates directories if needed
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
