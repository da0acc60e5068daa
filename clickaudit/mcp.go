package clickaudit

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/linkaudit/kit"
)

// RegisterMCP registers the clickaudit tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSnapshotTool(srv)
	s.registerGetTool(srv)
	s.registerHistoryTool(srv)
	s.registerDailyStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Service) mcpEndpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name))(ep)
}

var clickTypeEnum = []any{"text", "css", "xpath", "aria"}

func (s *Service) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "clickaudit_snapshot",
		Description: "Open a page, click a link or button like a user would, and append a tamper-evidence record " +
			"(final URL, DOM digest, screenshot). Returns the record and the stage reached.",
		InputSchema: inputSchema(map[string]any{
			"origin_url":     map[string]any{"type": "string", "description": "Page containing the link"},
			"click_type":     map[string]any{"type": "string", "enum": clickTypeEnum, "description": "How click_value designates the control"},
			"click_value":    map[string]any{"type": "string", "description": "Visible text, CSS selector, XPath, or role:name"},
			"settle_wait_ms": map[string]any{"type": "integer", "minimum": 0, "maximum": maxSettleMs, "description": "Wait after the click, in ms (default 3000)"},
			"full_page":      map[string]any{"type": "boolean", "description": "Capture the whole document (default true)"},
		}, []string{"origin_url", "click_type", "click_value"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.CreateSnapshot(ctx, *req.(*SnapshotRequest))
	}
	kit.RegisterMCPTool(srv, tool, s.mcpEndpoint(tool.Name, endpoint), kit.DecodeJSON[SnapshotRequest])
}

type getRequest struct {
	ID int64 `json:"id"`
}

func (s *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clickaudit_get",
		Description: "Read one audit record by id.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "integer", "description": "Snapshot id"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.Get(ctx, req.(*getRequest).ID)
	}
	kit.RegisterMCPTool(srv, tool, s.mcpEndpoint(tool.Name, endpoint), kit.DecodeJSON[getRequest])
}

type historyRequest struct {
	OriginURL  string `json:"origin_url"`
	ClickType  string `json:"click_type"`
	ClickValue string `json:"click_value"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clickaudit_history",
		Description: "List every observation of one link, oldest first, each compared with the previous complete one.",
		InputSchema: inputSchema(map[string]any{
			"origin_url":  map[string]any{"type": "string"},
			"click_type":  map[string]any{"type": "string", "enum": clickTypeEnum},
			"click_value": map[string]any{"type": "string"},
		}, []string{"origin_url", "click_type", "click_value"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		return s.History(ctx, r.OriginURL, r.ClickType, r.ClickValue)
	}
	kit.RegisterMCPTool(srv, tool, s.mcpEndpoint(tool.Name, endpoint), kit.DecodeJSON[historyRequest])
}

type dailyStatsRequest struct {
	Days int `json:"days,omitempty"`
}

func (s *Service) registerDailyStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clickaudit_daily_stats",
		Description: "Per day and origin: number of observations and distinct DOM digests (default last 60 days).",
		InputSchema: inputSchema(map[string]any{
			"days": map[string]any{"type": "integer", "description": "Window size in days (default 60)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return s.DailyStats(ctx, req.(*dailyStatsRequest).Days)
	}
	kit.RegisterMCPTool(srv, tool, s.mcpEndpoint(tool.Name, endpoint), kit.DecodeJSON[dailyStatsRequest])
}
