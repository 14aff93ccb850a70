package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YtDlpFetcher downloads subtitles with yt-dlp. It backs up the watch-page
// retriever when that fails transiently.
type YtDlpFetcher struct {
	cacheDir    string
	languages   []string
	cookiesFile string
	logger      *slog.Logger

	installOnce sync.Once
	installErr  error
}

func NewYtDlpFetcher(cacheDir string, languages []string, cookiesFile string, logger *slog.Logger) *YtDlpFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlpFetcher{
		cacheDir:    cacheDir,
		languages:   languages,
		cookiesFile: cookiesFile,
		logger:      logger,
	}
}

func (y *YtDlpFetcher) install(ctx context.Context) error {
	y.installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			y.installErr = fmt.Errorf("installing yt-dlp: %w", err)
		}
	})
	return y.installErr
}

// Fetch downloads manual and automatic subtitles in the preferred languages
// and converts the best one to segments.
func (y *YtDlpFetcher) Fetch(ctx context.Context, videoID string) (TranscriptResult, error) {
	res := TranscriptResult{VideoID: videoID}
	if err := y.install(ctx); err != nil {
		return res, err
	}

	if err := EnsureDirs(y.cacheDir); err != nil {
		return res, fmt.Errorf("creating cache directory: %w", err)
	}
	workDir, err := os.MkdirTemp(y.cacheDir, "subs-"+videoID+"-")
	if err != nil {
		return res, fmt.Errorf("creating subtitle directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	dl := ytdlp.New().
		WriteSubs().
		WriteAutoSubs().
		SubLangs(strings.Join(y.languages, ",")).
		ConvertSubs("srt").
		SkipDownload().
		NoPlaylist().
		Output(filepath.Join(workDir, "%(id)s"))
	if y.cookiesFile != "" {
		dl = dl.Cookies(y.cookiesFile)
	}

	result, err := dl.Run(ctx, "https://www.youtube.com/watch?v="+videoID)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		if containsBlockMarker([]byte(stderr)) {
			res.Status = TranscriptBlocked
			res.Reason = "bot_check"
			return res, nil
		}
		return res, fmt.Errorf("yt-dlp: %w", err)
	}

	path, lang := y.pickSubtitleFile(workDir, videoID)
	if path == "" {
		return unavailable(res, ReasonNoTranscript), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("reading subtitle file: %w", err)
	}
	segments := removeDuplicates(parseSRT(string(content)))
	if len(segments) == 0 {
		return unavailable(res, ReasonNoTranscript), nil
	}

	y.logger.Debug("yt-dlp subtitles", slog.String("id", videoID), slog.String("lang", lang), slog.Int("segments", len(segments)))
	res.Status = TranscriptAvailable
	res.Language = lang
	res.Segments = segments
	return res, nil
}

// pickSubtitleFile returns the file for the most preferred language present.
func (y *YtDlpFetcher) pickSubtitleFile(dir, videoID string) (string, string) {
	files, _ := filepath.Glob(filepath.Join(dir, videoID+".*.srt"))
	if len(files) == 0 {
		return "", ""
	}
	byLang := make(map[string]string, len(files))
	for _, f := range files {
		lang := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(f), videoID+"."), ".srt")
		byLang[lang] = f
	}
	for _, lang := range y.languages {
		if f, ok := byLang[lang]; ok {
			return f, lang
		}
	}
	lang := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(files[0]), videoID+"."), ".srt")
	return files[0], lang
}

// parseSRT extracts timed text blocks from SRT content
func parseSRT(content string) []Segment {
	var segments []Segment
	content = strings.ReplaceAll(content, "\r\n", "\n")

	for block := range strings.SplitSeq(content, "\n\n") {
		blockLines := strings.Split(strings.TrimSpace(block), "\n")
		if len(blockLines) < 3 {
			continue
		}
		// Skip sequence number, read the start of the timestamp line
		start := parseSRTTimestamp(strings.TrimSpace(strings.SplitN(blockLines[1], "-->", 2)[0]))
		var text []string
		for _, line := range blockLines[2:] {
			if line = strings.TrimSpace(line); line != "" {
				text = append(text, line)
			}
		}
		if len(text) > 0 {
			segments = append(segments, Segment{Text: strings.Join(text, " "), Start: start})
		}
	}

	return segments
}

// parseSRTTimestamp parses HH:MM:SS,mmm
func parseSRTTimestamp(s string) time.Duration {
	hms, msPart, _ := strings.Cut(s, ",")
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(msPart)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond
}

// removeDuplicates eliminates consecutive repeated lines, which auto captions
// produce as each line scrolls up
func removeDuplicates(segments []Segment) []Segment {
	result := make([]Segment, 0, len(segments))
	prev := ""

	for _, seg := range segments {
		isDuplicate := prev != "" && (strings.Contains(seg.Text, prev) || strings.Contains(prev, seg.Text))
		if !isDuplicate {
			result = append(result, seg)
		}
		prev = seg.Text
	}

	return result
}
