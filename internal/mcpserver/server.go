package mcpserver

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/b0ase/cardlog/internal/backup"
)

// MCPServer wraps the MCP protocol server with cardlog tools.
type MCPServer struct {
	server  *mcp.Server
	backups *backup.Manager
	clock   clock.Clock
}

// New creates an MCP server with all cardlog tools registered. The database
// must already be open.
func New(version string, backups *backup.Manager, clk clock.Clock) *MCPServer {
	if clk == nil {
		clk = clock.New()
	}
	s := &MCPServer{
		backups: backups,
		clock:   clk,
		server: mcp.NewServer(
			&mcp.Implementation{
				Name:    "cardlog",
				Version: version,
			},
			&mcp.ServerOptions{
				Instructions: "Card scan access log. Provides tools to list recent scans, search by card UID or user, list scans for a day, read scan statistics and inspect or back up the database.",
			},
		),
	}
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects.
func (s *MCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
