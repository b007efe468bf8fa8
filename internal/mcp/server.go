// Package mcp exposes the focuswatch store to MCP clients as read-only tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/state"
)

const summaryURI = "focuswatch://summary"

// Server wraps the MCP server around a state inspector
type Server struct {
	mcpServer *mcpserver.MCPServer
	inspector *state.Inspector
	log       zerolog.Logger
}

// New creates and configures a new MCP server with all resources and tools
func New(inspector *state.Inspector, version string, log zerolog.Logger) *Server {
	s := &Server{
		inspector: inspector,
		log:       log,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"focuswatch",
		version,
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithToolCapabilities(true),
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			summaryURI,
			"Focus Summary",
			mcplib.WithResourceDescription("Table sizes, latest day of timer totals and the last focus record"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSummaryResource,
	)
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) handleSummaryResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	summary, err := s.inspector.Summary(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      summaryURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
