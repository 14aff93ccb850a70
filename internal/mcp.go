package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the MCP server and application dependencies
type MCPServer struct {
	app       *App
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(app *App, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"ytsubs",
		version,
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		app:       app,
		mcpServer: mcpServer,
		logger:    app.Logger().With(slog.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("video_status",
		mcp.WithDescription("Report whether a video was already processed and with which outcome (summarized, no_transcript, error, seeded), plus the note path when one was written."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID"),
			mcp.Required(),
		),
	), s.handleVideoStatus)

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Fetch the caption transcript of a YouTube video. Does not summarize and does not change processing state."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID"),
			mcp.Required(),
		),
	), s.handleGetTranscript)

	s.mcpServer.AddTool(mcp.NewTool("discover_videos",
		mcp.WithDescription("List the videos the next run would process, newest first. Costs YouTube Data API quota; does not fetch transcripts or change state."),
		mcp.WithString("playlist",
			mcp.Description("Playlist name or ID; omit to use subscriptions"),
		),
	), s.handleDiscoverVideos)
}

func (s *MCPServer) handleVideoStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	s.logger.Info("video_status", slog.String("url", url))

	rec, ok, err := s.app.Record(ctx, url)
	if err != nil {
		s.logger.Error("video_status failed", slog.Any("error", err))
		return mcp.NewToolResultErrorFromErr("state lookup failed", err), nil
	}
	if !ok {
		return mcp.NewToolResultText("Not processed yet."), nil
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "Video: %s\n", rec.VideoID)
	if rec.Title != "" {
		fmt.Fprintf(&buf, "Title: %s\n", rec.Title)
	}
	fmt.Fprintf(&buf, "Outcome: %s\n", rec.Outcome)
	if rec.Reason != "" {
		fmt.Fprintf(&buf, "Reason: %s\n", rec.Reason)
	}
	if rec.Attempts > 0 {
		fmt.Fprintf(&buf, "Attempts: %d\n", rec.Attempts)
	}
	if rec.NotePath != "" {
		fmt.Fprintf(&buf, "Note: %s\n", rec.NotePath)
	}
	fmt.Fprintf(&buf, "Processed at: %s\n", rec.ProcessedAt.Format("2006-01-02 15:04:05 MST"))
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *MCPServer) handleGetTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	s.logger.Info("get_transcript", slog.String("url", url))

	res, err := s.app.Transcript(ctx, url)
	if err != nil {
		s.logger.Error("get_transcript failed", slog.Any("error", err))
		if errors.Is(err, ErrBlocked) {
			return mcp.NewToolResultErrorFromErr("transcript requests are blocked from this network; try again later", err), nil
		}
		return mcp.NewToolResultErrorFromErr("no transcript available", err), nil
	}
	return mcp.NewToolResultText(res.Text()), nil
}

func (s *MCPServer) handleDiscoverVideos(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := SubscriptionsMode()
	if name := strings.TrimSpace(request.GetString("playlist", "")); name != "" {
		mode = PlaylistMode(name)
	}
	s.logger.Info("discover_videos", slog.String("mode", mode.Kind.String()))

	res, used, err := s.app.Discover(ctx, mode)
	if err != nil {
		s.logger.Error("discover_videos failed", slog.Any("error", err))
		return mcp.NewToolResultErrorFromErr("discovery failed", err), nil
	}

	var buf strings.Builder
	if len(res.Candidates) == 0 {
		buf.WriteString("No new videos.\n")
	}
	for _, c := range res.Candidates {
		fmt.Fprintf(&buf, "- %s | %s | %s | %s\n",
			c.PublishedAt.Format("2006-01-02"), c.DisplayChannel(), c.Title, c.URL())
	}
	fmt.Fprintf(&buf, "\nAPI quota used: %d units\n", used)
	if res.QuotaExhausted {
		buf.WriteString("Quota was exhausted; the list is partial.\n")
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Info("serving MCP over HTTP", slog.String("addr", addr))
		return httpServer.Start(addr)
	}

	s.logger.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcpServer)
}

// GetServer returns the underlying MCP server for advanced configuration
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.mcpServer
}
