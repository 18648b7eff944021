// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the memory documents as tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// FormatURI is the resource URI of the memory format description.
const FormatURI = "memsync://memory-format"

// Service is the file service the tools operate on.
type Service interface {
	ListFiles(ctx context.Context) []models.File
	GetFile(ctx context.Context, date string) (*models.File, error)
	WriteFile(ctx context.Context, date, content string) (*models.File, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

// Server wraps the MCP server with the memory tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"memsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_memories",
		mcp.WithDescription("List memory files, most recent date first, with their task and memory counts."),
	), s.listMemories)

	s.mcp.AddTool(mcp.NewTool("read_memory",
		mcp.WithDescription("Read the full Markdown content of the memory file for a date."),
		mcp.WithString("date", mcp.Required(), mcp.Description("File date in YYYY-MM-DD form")),
	), s.readMemory)

	s.mcp.AddTool(mcp.NewTool("write_memory",
		mcp.WithDescription("Replace the memory file for a date. Connected clients see the change immediately. "+
			"Read the format first via get_memory_format or the "+FormatURI+" resource."),
		mcp.WithString("date", mcp.Required(), mcp.Description("File date in YYYY-MM-DD form")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full Markdown content of the file")),
	), s.writeMemory)

	s.mcp.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Full-text search through memory titles, bodies and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchMemories)

	s.mcp.AddTool(mcp.NewTool("get_memory_format",
		mcp.WithDescription("Returns the Markdown conventions memory files follow."),
	), s.getMemoryFormat)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Memory Format",
			mcp.WithResourceDescription("Markdown conventions for dated memory files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// Handler returns the streamable HTTP transport for mounting at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type memoryListItem struct {
	Date         string `json:"date"`
	Title        string `json:"title,omitempty"`
	LastModified int64  `json:"lastModified"`
	Tasks        int    `json:"tasks"`
	OpenTasks    int    `json:"openTasks"`
	Memories     int    `json:"memories"`
}

func (s *Server) listMemories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files := s.svc.ListFiles(ctx)
	items := make([]memoryListItem, 0, len(files))
	for _, f := range files {
		open := 0
		for _, t := range f.Tasks {
			if !t.Done {
				open++
			}
		}
		items = append(items, memoryListItem{
			Date:         f.Date,
			Title:        f.Title,
			LastModified: f.LastModified,
			Tasks:        len(f.Tasks),
			OpenTasks:    open,
			Memories:     len(f.Memories),
		})
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFile(ctx, date)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", date)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(f.Content), nil
}

func (s *Server) writeMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.WriteFile(ctx, date, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s (lastModified %d, %d tasks, %d memories)",
		f.Date, f.LastModified, len(f.Tasks), len(f.Memories))), nil
}

func (s *Server) searchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMemoryFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MemoryFormat), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     MemoryFormat,
		},
	}, nil
}
