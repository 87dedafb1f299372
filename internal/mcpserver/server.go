// Package mcpserver exposes the session manager as MCP tools over stdio.
// This layer stays thin: parse arguments, call the manager, shape the result.
// All device semantics live in netdev; all lifecycle rules in sshsession.
package mcpserver

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/netshell-labs/netshell/internal/config"
	"github.com/netshell-labs/netshell/internal/sshsession"
)

// Version is stamped at build time.
var Version = "dev"

// Server binds the MCP tool surface to a session manager.
type Server struct {
	mgr *sshsession.Manager
	cfg config.Settings
	mcp *server.MCPServer
}

// New builds the server and registers every tool.
func New(mgr *sshsession.Manager, cfg config.Settings) *Server {
	s := &Server{
		mgr: mgr,
		cfg: cfg,
		mcp: server.NewMCPServer(
			"netshell",
			Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over stdin/stdout until the client hangs up. Logging goes
// to stderr; stdout belongs to the protocol.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// jsonResult renders v as an indented-JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
