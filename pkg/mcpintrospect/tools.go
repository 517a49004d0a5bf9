package mcpintrospect

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers REthos's four introspection tools.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_stats",
			mcp.WithDescription("Get the current global and per-channel REthos link counters"),
		),
		s.handleGetStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_channels",
			mcp.WithDescription("List REthos's 256 logical channels, their connection state, and any configured metadata"),
		),
		s.handleListChannels,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_mcu_address",
			mcp.WithDescription("Get the most recently observed MCU IPv6 address, if any tuntap address has ever been recorded"),
		),
		s.handleGetMCUAddress,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_link_sessions",
			mcp.WithDescription("List recent serial link sessions with their loss counters"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of sessions to return (default 20)"),
			),
		),
		s.handleGetLinkSessions,
	)
}
