package mcpintrospect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rethos/rethos/pkg/stats"
)

func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.collector.TakeSnapshot())), nil
}

type channelInfo struct {
	Channel     uint8  `json:"channel"`
	Connected   bool   `json:"connected"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListChannels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := make([]channelInfo, 0, stats.NumChannels)
	for i := 0; i < stats.NumChannels; i++ {
		ep := s.channels[i]
		info := channelInfo{Channel: uint8(i)}
		if ep != nil {
			info.Connected = ep.Connected()
		}
		if s.chanMeta != nil {
			if entry, ok := s.chanMeta.Lookup(uint8(i)); ok {
				info.Name = entry.Name
				info.Description = entry.Description
			}
		}
		infos = append(infos, info)
	}
	return mcp.NewToolResultText(formatJSON(infos)), nil
}

func (s *Server) handleGetMCUAddress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.st == nil {
		return mcp.NewToolResultError("history persistence is disabled, no MCU address history is available"), nil
	}

	obs, err := s.st.LatestMCUAddress(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mcp.NewToolResultText(formatJSON(map[string]any{"observed": false})), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up MCU address: %s", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]any{
		"observed":    true,
		"address":     obs.Address,
		"observed_at": obs.ObservedAt.Format(time.RFC3339),
	})), nil
}

func (s *Server) handleGetLinkSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.st == nil {
		return mcp.NewToolResultError("history persistence is disabled, no session history is available"), nil
	}

	limit := 20
	if l, ok := request.GetArguments()["limit"]; ok {
		if lf, ok := l.(float64); ok && lf > 0 {
			limit = int(lf)
		}
	}

	sessions, err := s.st.RecentSessions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list link sessions: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(sessions)), nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
