package internal

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "ytsubs"

// Config holds application settings
type Config struct {
	// Discovery
	MaxVideos             int
	MaxAgeDays            int
	PlaylistMaxAgeDays    int
	PerChannelLimit       int
	ExcludeShorts         bool
	ShortsMaxSeconds      int
	UseEfficientDiscovery bool
	ShortlistSize         int
	PoolFactor            int
	PlaylistMaxItems      int
	WatchHistoryFile      string

	// YouTube Data API
	ClientSecretFile string
	TokenFile        string
	APITimeout       time.Duration
	APIRate          float64
	QuotaBudget      int

	// Transcripts
	TranscriptLanguages []string
	AcceptNonEnglish    bool
	TranscriptTimeout   time.Duration
	TranscriptInterval  time.Duration
	RetryNoTranscript   bool
	MaxErrorAttempts    int
	YtDlpFallback       bool
	CookiesFile         string

	// Summaries
	OpenAIAPIKey          string
	OpenAIModel           string
	SummaryTimeout        time.Duration
	LocalSummarySentences int
	Prompt                string

	// Output and state
	OutputDir    string
	StateFile    string
	StateBackend string
	LogLevel     string
	Verbose      bool
	Quiet        bool

	// Fixed XDG paths (not configurable)
	ConfigDir string
	DataDir   string
	CacheDir  string

	configFileUsed string
}

//go:embed config.toml prompt.txt
var defaultFS embed.FS

// ensureDefaultFile checks if a file exists in the specified directory
// and creates it from the embedded default if it doesn't exist
func ensureDefaultFile(configDir, embedFilename, description string) error {
	filePath := filepath.Join(configDir, embedFilename)

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile(embedFilename)
	if err != nil {
		return fmt.Errorf("reading embedded default %s: %w", description, err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0o644); err != nil {
		return fmt.Errorf("writing default %s: %w", description, err)
	}

	fmt.Fprintf(os.Stderr, "Created default %s at %s\n", description, filePath)
	return nil
}

// EnsureDefaultConfig checks if a config file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	return ensureDefaultFile(configDir, "config.toml", "configuration")
}

// EnsureDefaultPrompt checks if a prompt.txt file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultPrompt(configDir string) error {
	return ensureDefaultFile(configDir, "prompt.txt", "prompt template")
}

// XDGDirs returns the config, data and cache directories of the application.
func XDGDirs() (configDir, dataDir, cacheDir string) {
	return filepath.Join(xdg.ConfigHome, appName),
		filepath.Join(xdg.DataHome, appName),
		filepath.Join(xdg.CacheHome, appName)
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("max_videos", 30)
	v.SetDefault("max_age_days", 14)
	v.SetDefault("playlist_max_age_days", 0)
	v.SetDefault("per_channel_limit", 3)
	v.SetDefault("exclude_shorts", true)
	v.SetDefault("shorts_max_seconds", 180)
	v.SetDefault("use_efficient_discovery", true)
	v.SetDefault("shortlist_size", 20)
	v.SetDefault("pool_factor", 10)
	v.SetDefault("playlist_max_items", 200)
	v.SetDefault("watch_history_file", "")

	v.SetDefault("client_secret_file", "")
	v.SetDefault("token_file", "")
	v.SetDefault("api_timeout", 30*time.Second)
	v.SetDefault("api_rate", 5.0)
	v.SetDefault("quota_budget", 0)

	v.SetDefault("transcript_languages", []string{"en", "en-US", "en-GB", "en-CA", "en-AU"})
	v.SetDefault("accept_non_english", true)
	v.SetDefault("transcript_timeout", 30*time.Second)
	v.SetDefault("transcript_interval", 2*time.Second)
	v.SetDefault("retry_no_transcript", false)
	v.SetDefault("max_error_attempts", 3)
	v.SetDefault("ytdlp_fallback", false)
	v.SetDefault("cookies_file", "")

	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("summary_timeout", 2*time.Minute)
	v.SetDefault("local_summary_sentences", 6)
	v.SetDefault("prompt", "") // if empty will use default prompt template

	v.SetDefault("output_dir", filepath.Join(dataDir, "notes"))
	v.SetDefault("state_file", "")
	v.SetDefault("state_backend", "json")
	v.SetDefault("log_level", "warn")
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
}

// NewViper builds the viper instance backing Config. configFile overrides
// the XDG lookup when set.
func NewViper(configFile string) *viper.Viper {
	configDir, dataDir, _ := XDGDirs()

	v := viper.New()
	setDefaults(v, dataDir)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("YTSUBS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// The OpenAI key is commonly exported without the prefix
	_ = v.BindEnv("openai_api_key", "YTSUBS_OPENAI_API_KEY", "OPENAI_API_KEY")

	return v
}

// InitConfig reads the config file (if any) and returns the settings.
func InitConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return ConfigFromViper(v), nil
}

// ConfigFromViper maps viper keys to a Config.
func ConfigFromViper(v *viper.Viper) *Config {
	configDir, dataDir, cacheDir := XDGDirs()

	cfg := &Config{
		MaxVideos:             v.GetInt("max_videos"),
		MaxAgeDays:            v.GetInt("max_age_days"),
		PlaylistMaxAgeDays:    v.GetInt("playlist_max_age_days"),
		PerChannelLimit:       v.GetInt("per_channel_limit"),
		ExcludeShorts:         v.GetBool("exclude_shorts"),
		ShortsMaxSeconds:      v.GetInt("shorts_max_seconds"),
		UseEfficientDiscovery: v.GetBool("use_efficient_discovery"),
		ShortlistSize:         v.GetInt("shortlist_size"),
		PoolFactor:            v.GetInt("pool_factor"),
		PlaylistMaxItems:      v.GetInt("playlist_max_items"),
		WatchHistoryFile:      expandHome(v.GetString("watch_history_file")),

		ClientSecretFile: expandHome(v.GetString("client_secret_file")),
		TokenFile:        expandHome(v.GetString("token_file")),
		APITimeout:       v.GetDuration("api_timeout"),
		APIRate:          v.GetFloat64("api_rate"),
		QuotaBudget:      v.GetInt("quota_budget"),

		TranscriptLanguages: v.GetStringSlice("transcript_languages"),
		AcceptNonEnglish:    v.GetBool("accept_non_english"),
		TranscriptTimeout:   v.GetDuration("transcript_timeout"),
		TranscriptInterval:  v.GetDuration("transcript_interval"),
		RetryNoTranscript:   v.GetBool("retry_no_transcript"),
		MaxErrorAttempts:    v.GetInt("max_error_attempts"),
		YtDlpFallback:       v.GetBool("ytdlp_fallback"),
		CookiesFile:         expandHome(v.GetString("cookies_file")),

		OpenAIAPIKey:          strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:           v.GetString("openai_model"),
		SummaryTimeout:        v.GetDuration("summary_timeout"),
		LocalSummarySentences: v.GetInt("local_summary_sentences"),
		Prompt:                v.GetString("prompt"),

		OutputDir:    expandHome(v.GetString("output_dir")),
		StateFile:    expandHome(v.GetString("state_file")),
		StateBackend: strings.ToLower(v.GetString("state_backend")),
		LogLevel:     v.GetString("log_level"),
		Verbose:      v.GetBool("verbose"),
		Quiet:        v.GetBool("quiet"),

		ConfigDir: configDir,
		DataDir:   dataDir,
		CacheDir:  cacheDir,

		configFileUsed: v.ConfigFileUsed(),
	}

	if cfg.ClientSecretFile == "" {
		cfg.ClientSecretFile = filepath.Join(configDir, "client_secret.json")
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = filepath.Join(configDir, "token.json")
	}
	if cfg.StateFile == "" {
		name := "state.json"
		if cfg.StateBackend == "sqlite" {
			name = "state.db"
		}
		cfg.StateFile = filepath.Join(dataDir, name)
	}
	if cfg.Verbose && levelFromString(cfg.LogLevel) > levelFromString("info") {
		cfg.LogLevel = "info"
	}
	return cfg
}

// ConfigFileUsed returns the config file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	return c.configFileUsed
}

// Validate rejects settings that would make every run fail.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown state_backend %q (want json or sqlite)", c.StateBackend)
	}
	if c.MaxVideos <= 0 {
		return fmt.Errorf("max_videos must be positive, got %d", c.MaxVideos)
	}
	if c.OpenAIAPIKey != "" {
		if err := ValidateModel(c.OpenAIModel); err != nil {
			return fmt.Errorf("invalid model in config: %w", err)
		}
	}
	return nil
}

// DiscoverOptions derives discovery settings from the config.
func (c *Config) DiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		MaxVideos:          c.MaxVideos,
		MaxAgeDays:         c.MaxAgeDays,
		PlaylistMaxAgeDays: c.PlaylistMaxAgeDays,
		PerChannelLimit:    c.PerChannelLimit,
		ExcludeShorts:      c.ExcludeShorts,
		ShortsMaxSeconds:   c.ShortsMaxSeconds,
		Efficient:          c.UseEfficientDiscovery,
		ShortlistSize:      c.ShortlistSize,
		PoolFactor:         c.PoolFactor,
		PlaylistMaxItems:   c.PlaylistMaxItems,
		RetryNoTranscript:  c.RetryNoTranscript,
		MaxErrorAttempts:   c.MaxErrorAttempts,
	}
}

// SummarizerConfig derives backend selection settings from the config.
func (c *Config) SummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		OpenAIAPIKey:   c.OpenAIAPIKey,
		OpenAIModel:    c.OpenAIModel,
		SummaryTimeout: c.SummaryTimeout,
		LocalSentences: c.LocalSummarySentences,
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
