// Package mcp exposes the synchronous drafting operations (scoring,
// comparison and quota checks) as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string) *Server {
	return &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport. Routing to
// /mcp is done by the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
