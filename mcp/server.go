// Package mcp gates MCP tool calls behind x402 payments. Paid tools
// answer unpaid tools/call requests with a JSON-RPC 402 error carrying
// the challenge; paid calls run after the payment settles and carry
// the settlement receipt in the result's _meta.
package mcp

import (
	"net/http"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/eventpay/x402gate"
)

// ToolConfig describes how one tool maps onto the gate.
type ToolConfig struct {
	// ScopeArg names the tool argument whose value becomes the
	// pricing scope, for example "eventId". Empty means no scope.
	ScopeArg string
}

// Server wraps an MCP server and gates selected tools.
type Server struct {
	mcp   *mcpserver.MCPServer
	gate  *x402gate.Gate
	tools map[string]ToolConfig
}

// NewServer creates an MCP server whose payable tools are protected by
// the given gate.
func NewServer(name, version string, gate *x402gate.Gate) *Server {
	return &Server{
		mcp:   mcpserver.NewMCPServer(name, version),
		gate:  gate,
		tools: make(map[string]ToolConfig),
	}
}

// AddTool registers a free tool.
func (s *Server) AddTool(tool mcpproto.Tool, handler mcpserver.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// AddPayableTool registers a tool that requires payment. Pricing comes
// from the gate's resolver, keyed by the tool's resource identifier
// "TOOL <name>" and the scope extracted per cfg.ScopeArg.
func (s *Server) AddPayableTool(tool mcpproto.Tool, cfg ToolConfig, handler mcpserver.ToolHandlerFunc) {
	s.tools[tool.Name] = cfg
	s.mcp.AddTool(tool, handler)
}

// Handler returns the HTTP handler serving the MCP protocol with
// payment interception.
func (s *Server) Handler() http.Handler {
	inner := mcpserver.NewStreamableHTTPServer(s.mcp)
	return &Handler{
		inner: inner,
		gate:  s.gate,
		tools: s.tools,
	}
}

// Start serves the MCP server on addr.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

// MCPServer exposes the wrapped server for advanced configuration.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}
