package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

var (
	config *internal.Config
)

// exitError carries a non-default process exit code. Its message, if any,
// has already been shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return internal.ExitFatal
	}
	return internal.ExitOK
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ytsubs [YouTube URL or ID ...]",
	Short: "Summarize new videos from your YouTube subscriptions into Markdown notes",
	Long: `ytsubs finds recent uploads from your subscribed channels (or a playlist,
or the videos you name), fetches their transcripts and writes a summary note
per video. Videos are processed at most once across runs.

Summaries come from OpenAI when an API key is configured and from a local
extractive summarizer otherwise.

Exit status: 0 on success, partial or quota-limited runs; 3 when transcript
requests are blocked; 1 on configuration or discovery failure.`,
	Example: `  # Process new uploads from subscriptions
  ytsubs

  # See what would be processed
  ytsubs --dry-run

  # Process a playlist by name
  ytsubs --playlist "Watch later queue"

  # Process specific videos
  ytsubs "https://www.youtube.com/watch?v=tAP1eZYEuKA" tAP1eZYEuKA`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := internal.ValidateOpenAIRequirements(cmd, config); err != nil {
			return err
		}
		if err := internal.ApplyRunFlags(cmd, config); err != nil {
			return err
		}
		if err := internal.HandlePromptFlag(cmd, config); err != nil {
			return err
		}

		mode, err := modeFromArgs(cmd, args)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		showTranscripts, _ := cmd.Flags().GetBool("show-transcripts")
		skipState, _ := cmd.Flags().GetBool("skip-state")

		app := internal.NewApp(config)
		report := app.Run(cmd.Context(), mode, internal.RunOptions{
			DryRun:          dryRun,
			ShowTranscripts: showTranscripts,
			SkipState:       skipState,
		})
		report.Print(cmd.OutOrStdout())

		if code := report.Status.ExitCode(); code != internal.ExitOK {
			return &exitError{code: code, err: report.Err}
		}
		return nil
	},
}

func modeFromArgs(cmd *cobra.Command, args []string) (internal.Mode, error) {
	playlist, _ := cmd.Flags().GetString("playlist")
	playlist = strings.TrimSpace(playlist)

	switch {
	case playlist != "" && len(args) > 0:
		return internal.Mode{}, fmt.Errorf("%w: --playlist cannot be combined with video arguments", internal.ErrInvalidMode)
	case playlist != "":
		return internal.PlaylistMode(playlist), nil
	case len(args) == 0:
		return internal.SubscriptionsMode(), nil
	}

	if len(args) == 1 && internal.IsLikelyCommand(args[0]) {
		return internal.Mode{}, unknownCommandError(cmd.Root(), args[0])
	}
	return internal.ExplicitMode(args...), nil
}

func unknownCommandError(root *cobra.Command, arg string) error {
	var suggestions []string
	for _, c := range root.Commands() {
		name := c.Name()
		if strings.Contains(name, arg) || (len(arg) <= len(name) && strings.HasPrefix(name, arg[:min(len(arg), 2)])) {
			suggestions = append(suggestions, name)
		}
	}
	if len(suggestions) > 0 {
		return fmt.Errorf("'%s' doesn't look like a YouTube URL or video ID. Did you mean: %s?", arg, strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("'%s' doesn't look like a YouTube URL or video ID. Use --help to see available commands", arg)
}

// loadConfig reads configuration once flags are parsed
func loadConfig(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := internal.InitConfig(internal.NewViper(configFile))
	if err != nil {
		return err
	}
	config = cfg

	if err := internal.EnsureDirs(config.ConfigDir, config.DataDir, config.CacheDir); err != nil {
		return fmt.Errorf("creating XDG directories: %w", err)
	}
	if configFile == "" {
		if err := internal.EnsureDefaultConfig(config.ConfigDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default config: %v\n", err)
		}
	}
	if err := internal.EnsureDefaultPrompt(config.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default prompt: %v\n", err)
	}

	if err := internal.HandleVerboseFlag(cmd, config); err != nil {
		return err
	}
	if config.Verbose && config.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", config.ConfigFileUsed())
	}
	return config.Validate()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal stops the run between videos; a second one exits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Finishing the current video...")
		cancel()
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "Forced exit")
			os.Exit(130)
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	internal.AddRunFlags(rootCmd)
	internal.AddOpenAIFlags(rootCmd)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for debugging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print the final report")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/ytsubs/config.toml)")
}
