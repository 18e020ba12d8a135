package tools

import (
	"context"

	"Giorgio/backend/go/pkg/mcp_host"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// externalTool 把外部 MCP 工具以限定名暴露给模型。
func (r *Registry) externalTool(nt mcp_host.NamedTool) server.ServerTool {
	tool := nt.Tool
	tool.Name = nt.QualifiedName()
	return server.ServerTool{Tool: tool, Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return r.deps.External.CallTool(ctx, tool.Name, req.GetArguments())
	}}
}
