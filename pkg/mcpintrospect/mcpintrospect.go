// Package mcpintrospect exposes REthos's read-only introspection surface
// as an MCP stdio tool server: get_stats, list_channels, get_mcu_address,
// and get_link_sessions. It never mutates link state — the same
// read-only boundary pkg/admin enforces over HTTP.
package mcpintrospect

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/rethos/rethos/pkg/chanconfig"
	"github.com/rethos/rethos/pkg/channel"
	"github.com/rethos/rethos/pkg/stats"
	"github.com/rethos/rethos/pkg/store"
)

// Server wraps the MCP server with REthos's introspection tools.
type Server struct {
	mcpServer *server.MCPServer
	collector *stats.Collector
	channels  [stats.NumChannels]*channel.Endpoint
	chanMeta  *chanconfig.Config
	st        *store.Store // nil disables get_link_sessions
}

// NewServer builds an MCP server surfacing REthos's live state.
func NewServer(collector *stats.Collector, channels [stats.NumChannels]*channel.Endpoint, chanMeta *chanconfig.Config, st *store.Store) *Server {
	s := &Server{
		collector: collector,
		channels:  channels,
		chanMeta:  chanMeta,
		st:        st,
	}

	s.mcpServer = server.NewMCPServer(
		"rethos",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// ServeStdio starts the MCP server using stdio transport. stdout is the
// transport; callers must log elsewhere (stderr).
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
