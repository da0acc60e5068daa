package clickaudit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testImpl = &mcp.Implementation{Name: "clickaudit-test", Version: "0.1.0"}

// mcpSession registers the tools on a fresh server and returns a connected
// client session.
func mcpSession(t *testing.T, newTab func() *fakeTab) (*Service, *mcp.ClientSession) {
	t.Helper()
	svc, _ := testService(t, nil, newTab)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return svc, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, name)
	require.NotEmpty(t, result.Content, name)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text, result.IsError
}

func TestMCPSnapshotAndGet(t *testing.T) {
	_, session := mcpSession(t, okTab)

	text, isErr := callTool(t, session, "clickaudit_snapshot", map[string]any{
		"origin_url": "https://origin.example/", "click_type": "aria", "click_value": "link:Download",
	})
	require.False(t, isErr, text)
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(text), &snap))
	assert.Positive(t, snap.ID)
	assert.Equal(t, StageRecorded, snap.Stage)

	text, isErr = callTool(t, session, "clickaudit_get", map[string]any{"id": snap.ID})
	require.False(t, isErr, text)
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(text), &rec))
	assert.Equal(t, snap.Record, rec)

	text, isErr = callTool(t, session, "clickaudit_history", map[string]any{
		"origin_url": "https://origin.example/", "click_type": "aria", "click_value": "link:Download",
	})
	require.False(t, isErr, text)
	var hist []HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(text), &hist))
	assert.Len(t, hist, 1)

	text, isErr = callTool(t, session, "clickaudit_daily_stats", map[string]any{})
	require.False(t, isErr, text)
	var stats []DayStat
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].TotalEvents)
}

func TestMCPToolErrors(t *testing.T) {
	svc, session := mcpSession(t, okTab)

	text, isErr := callTool(t, session, "clickaudit_get", map[string]any{"id": 999})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	text, isErr = callTool(t, session, "clickaudit_snapshot", map[string]any{
		"origin_url": "https://origin.example/", "click_type": "label", "click_value": "x",
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "invalid request")

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "clickaudit_snapshot",
		Arguments: map[string]any{
			"origin_url": "https://origin.example/", "click_type": "text", "click_value": "x",
			"settle_wait_ms": int64(9_300_000_000_000),
		},
	})
	if err == nil {
		assert.True(t, result.IsError, "oversized settle wait must not run")
	}
	_, err = svc.Store().Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
