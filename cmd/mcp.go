package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rtzll/ytsubs/internal"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server exposing ytsubs lookups",
	Long: `Run a Model Context Protocol (MCP) server that exposes ytsubs as tools.

Tools:
- video_status: whether a video was processed and with which outcome
- get_transcript: the caption transcript of a video
- discover_videos: the videos the next run would process (costs API quota)

None of the tools write state or notes.

Transport options:
- stdio (default): Standard MCP transport via stdin/stdout
- http: HTTP transport on specified port (use --port to configure)

Logs go to $XDG_CACHE_HOME/ytsubs/mcp.log.`,
	Example: `  # Run MCP server with stdio transport
  ytsubs mcp

  # Run MCP server with HTTP transport on port 8080
  ytsubs mcp --transport=http --port=8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		logPath := filepath.Join(config.CacheDir, "mcp.log")
		logger, closer, err := internal.NewFileLogger(logPath, config.LogLevel)
		if err != nil {
			return fmt.Errorf("setting up MCP log: %w", err)
		}
		defer closer.Close()

		// stdout belongs to the protocol
		app := internal.NewApp(config,
			internal.WithLogger(logger),
			internal.WithUI(internal.NewUIManager(false, true)))

		return internal.NewMCPServer(app, version).Start(cmd.Context(), transport, port)
	},
}

func init() {
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol (stdio or http)")
	mcpCmd.Flags().Int("port", 8080, "Port for HTTP transport (only used with --transport=http)")
	rootCmd.AddCommand(mcpCmd)
}
