package mcp_host

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer() *server.MCPServer {
	srv := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(
		mcp.NewTool("echo", mcp.WithDescription("echo"), mcp.WithString("text", mcp.Required())),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("eco: " + req.GetString("text", "")), nil
		},
	)
	return srv
}

func TestHostAttachListAndCall(t *testing.T) {
	ctx := context.Background()
	h := NewHost()
	defer h.CloseAll()

	c, err := client.NewInProcessClient(newEchoServer())
	require.NoError(t, err)
	require.NoError(t, h.Attach(ctx, "demo", c))

	tools, failures := h.Tools(ctx)
	assert.Empty(t, failures)
	require.Len(t, tools, 1)
	assert.Equal(t, "demo__echo", tools[0].QualifiedName())

	res, err := h.CallTool(ctx, "demo__echo", map[string]interface{}{"text": "ciao"})
	require.NoError(t, err)
	assert.Equal(t, "eco: ciao", ResultText(res))
}

func TestHostRejectsUnknownServer(t *testing.T) {
	h := NewHost()
	_, err := h.CallTool(context.Background(), "missing__echo", nil)
	assert.Error(t, err)
	_, err = h.CallTool(context.Background(), "noprefix", nil)
	assert.Error(t, err)
}

func TestHostRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	h := NewHost()
	defer h.CloseAll()

	c1, _ := client.NewInProcessClient(newEchoServer())
	require.NoError(t, h.Attach(ctx, "demo", c1))
	c2, _ := client.NewInProcessClient(newEchoServer())
	assert.Error(t, h.Attach(ctx, "demo", c2))
}
