// Package mcpserver exposes the pagewatch API as MCP tools.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all pagewatch tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("pagewatch", version)
	client := NewPagewatchClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolClassifyEvent, h.HandleClassifyEvent)
	s.AddTool(ToolAnalyzeBatch, h.HandleAnalyzeBatch)
	s.AddTool(ToolCheckURL, h.HandleCheckURL)
	s.AddTool(ToolRecentEvents, h.HandleRecentEvents)
	s.AddTool(ToolRecentDomains, h.HandleRecentDomains)
	s.AddTool(ToolActivitySummary, h.HandleActivitySummary)

	return s
}
