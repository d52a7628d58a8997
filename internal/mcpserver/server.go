// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes shortwatch tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/shortwatch/internal/apperr"
	"github.com/starford/shortwatch/internal/detectionservice"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/store"
)

const contractURI = "shortwatch://detection-format"

// Server wraps the MCP server with shortwatch tools.
type Server struct {
	mcp *server.MCPServer
	svc *detectionservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *detectionservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"shortwatch",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_detections",
		mcp.WithDescription("List recently detected short videos, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of detections (default 20)")),
		mcp.WithString("origin", mcp.Description("Only detections from this path: history, sidecar or manual")),
	), s.listDetections)

	s.mcp.AddTool(mcp.NewTool("get_detection",
		mcp.WithDescription("Read one detection including its full enrichment."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Detection id")),
	), s.getDetection)

	s.mcp.AddTool(mcp.NewTool("search_detections",
		mcp.WithDescription("Full-text search over titles, analyses and caption transcripts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDetections)

	s.mcp.AddTool(mcp.NewTool("enrich_video",
		mcp.WithDescription("Fetch metadata, comments and captions for a YouTube URL now "+
			"(or send it to the analysis service in analyze mode) and record the result. "+
			"See the get_detection_format tool for the result fields."),
		mcp.WithString("url", mcp.Required(), mcp.Description("YouTube Shorts, watch or youtu.be URL")),
	), s.enrichVideo)

	s.mcp.AddTool(mcp.NewTool("extract_video_id",
		mcp.WithDescription("Parse a URL into its YouTube video id and canonical Shorts URL without network access."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to parse")),
	), s.extractVideoID)

	s.mcp.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Report the history watermark and sidecar process state."),
	), s.getStatus)

	s.mcp.AddTool(mcp.NewTool("get_detection_format",
		mcp.WithDescription("Returns the description of detection fields."),
	), s.getDetectionFormat)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Detection Format",
			mcp.WithResourceDescription("Fields of a shortwatch detection and how to read them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDetectionFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listDetections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	origin := req.GetString("origin", "")

	items, total, err := s.svc.ListDetections(ctx, store.ListQuery{Limit: limit, Origin: events.Origin(origin)})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"detections": items, "total": total}), nil
}

func (s *Server) getDetection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetDetection(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("not found: " + id), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) searchDetections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) enrichVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Enrich(ctx, url)
	if d == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) extractVideoID(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ex, err := s.svc.Extract(url)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ex), nil
}

func (s *Server) getStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status(ctx)), nil
}

func (s *Server) getDetectionFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DetectionContract), nil
}

func (s *Server) readDetectionFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     DetectionContract,
		},
	}, nil
}
