package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AddRunFlags adds the flags that shape a processing run
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("playlist", "", "Process a playlist (name or ID) instead of subscriptions")
	cmd.Flags().Bool("dry-run", false, "List candidates without fetching, summarizing or recording")
	cmd.Flags().Bool("show-transcripts", false, "Print transcripts (with --dry-run: fetch and preview them)")
	cmd.Flags().Bool("skip-state", false, "Filter against state but never record outcomes")
	cmd.Flags().Int("max-videos", 0, "Maximum videos to process (default from config)")
	cmd.Flags().Int("max-age-days", 0, "Ignore videos older than this many days (default from config)")
	cmd.Flags().Int("per-channel-limit", 0, "Maximum recent uploads considered per channel (default from config)")
	cmd.Flags().Bool("legacy-discovery", false, "Enumerate every subscription instead of a relevance shortlist")
	cmd.Flags().Bool("include-shorts", false, "Do not filter out Shorts")
}

// AddOpenAIFlags adds flags related to OpenAI API functionality
func AddOpenAIFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("model", "m", "", "OpenAI model to use for summaries")
	cmd.Flags().StringP("prompt", "p", "", "Custom prompt (string or file path)")
}

// ApplyRunFlags copies explicitly set run flags over the config values
func ApplyRunFlags(cmd *cobra.Command, config *Config) error {
	intFlags := map[string]*int{
		"max-videos":        &config.MaxVideos,
		"max-age-days":      &config.MaxAgeDays,
		"per-channel-limit": &config.PerChannelLimit,
	}
	for name, dst := range intFlags {
		if !cmd.Flags().Changed(name) {
			continue
		}
		n, err := cmd.Flags().GetInt(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		if n < 0 {
			return fmt.Errorf("--%s must not be negative", name)
		}
		*dst = n
	}
	if legacy, _ := cmd.Flags().GetBool("legacy-discovery"); legacy {
		config.UseEfficientDiscovery = false
	}
	if include, _ := cmd.Flags().GetBool("include-shorts"); include {
		config.ExcludeShorts = false
	}
	return nil
}

// HandlePromptFlag processes the --prompt flag to set custom prompt
func HandlePromptFlag(cmd *cobra.Command, config *Config) error {
	promptFlag := cmd.Flags().Lookup("prompt")
	if promptFlag == nil || !promptFlag.Changed {
		return nil
	}

	prompt, err := cmd.Flags().GetString("prompt")
	if err != nil {
		return fmt.Errorf("failed to get prompt flag: %w", err)
	}
	if prompt == "" {
		return nil
	}
	config.Prompt = prompt
	return nil
}

// HandleVerboseFlag processes the --verbose, --quiet and --log-level flags
func HandleVerboseFlag(cmd *cobra.Command, config *Config) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}
	if verbose {
		config.Verbose = true
		if levelFromString(config.LogLevel) > levelFromString("info") {
			config.LogLevel = "info"
		}
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		config.Quiet = true
	}
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		config.LogLevel = level
	}
	return nil
}

// ValidateOpenAIRequirements validates the OpenAI model when the remote
// backend is in use. Without a key the local summarizer runs and no
// validation is needed.
func ValidateOpenAIRequirements(cmd *cobra.Command, config *Config) error {
	modelFlag, _ := cmd.Flags().GetString("model")
	if modelFlag != "" {
		if err := ValidateModel(modelFlag); err != nil {
			return err
		}
		config.OpenAIModel = modelFlag
	}

	if config.OpenAIAPIKey == "" {
		return nil
	}
	if err := ValidateOpenAIAPIKey(config.OpenAIAPIKey); err != nil {
		return err
	}
	if err := ValidateModel(config.OpenAIModel); err != nil {
		return fmt.Errorf("invalid model in config: %w", err)
	}
	return nil
}
