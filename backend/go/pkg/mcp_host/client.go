package mcp_host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// NameSeparator 连接服务器名和工具名，外部工具对模型暴露为 "<server>__<tool>"。
const NameSeparator = "__"

// Host 连接并管理多个外部 MCP 服务器，对外提供统一的工具列表和调用入口。
type Host struct {
	servers map[string]client.MCPClient
	mu      sync.RWMutex
}

// ConnectOptions 定义了连接到 MCP 服务端的配置项。
type ConnectOptions struct {
	ServerName    string
	TransportType string // "stdio" 或 "http-sse"
	Command       string
	Args          []string
	URL           string
	Env           []string
}

// NamedTool 是带有来源服务器的工具定义。
type NamedTool struct {
	Server string
	Tool   mcp.Tool
}

// QualifiedName 返回 "<server>__<tool>"。
func (t NamedTool) QualifiedName() string {
	return t.Server + NameSeparator + t.Tool.Name
}

// NewHost 创建一个新的 Host 实例。
func NewHost() *Host {
	return &Host{servers: make(map[string]client.MCPClient)}
}

// Connect 按选项创建客户端并完成初始化握手。
func (h *Host) Connect(ctx context.Context, opts ConnectOptions) error {
	if opts.ServerName == "" || strings.Contains(opts.ServerName, NameSeparator) {
		return fmt.Errorf("非法的 MCP 服务器名称 '%s'", opts.ServerName)
	}

	var (
		c   *client.Client
		err error
	)
	switch opts.TransportType {
	case "stdio":
		c, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
	case "http-sse":
		c, err = client.NewSSEMCPClient(opts.URL)
	default:
		return fmt.Errorf("不支持的传输类型: '%s'", opts.TransportType)
	}
	if err != nil {
		return fmt.Errorf("创建 MCP 客户端 '%s' 失败: %w", opts.ServerName, err)
	}
	return h.Attach(ctx, opts.ServerName, c)
}

// Attach 启动并初始化一个已创建的客户端（例如进程内客户端），然后登记到 Host。
func (h *Host) Attach(ctx context.Context, name string, c *client.Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.servers[name]; exists {
		c.Close()
		return fmt.Errorf("MCP 服务器 '%s' 已连接", name)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("启动 MCP 客户端 '%s' 失败: %w", name, err)
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "giorgio",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
	if _, err := c.Initialize(ctx, initRequest); err != nil {
		c.Close()
		return fmt.Errorf("初始化 MCP 客户端 '%s' 失败: %w", name, err)
	}

	h.servers[name] = c
	return nil
}

// Tools 聚合所有服务器的工具，单个服务器失败不影响其他服务器。
// 返回结果按限定名排序。
func (h *Host) Tools(ctx context.Context) ([]NamedTool, map[string]error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var all []NamedTool
	failures := make(map[string]error)
	for name, c := range h.servers {
		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			failures[name] = err
			continue
		}
		for _, tool := range res.Tools {
			all = append(all, NamedTool{Server: name, Tool: tool})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].QualifiedName() < all[j].QualifiedName() })
	return all, failures
}

// CallTool 按限定名 "<server>__<tool>" 调用工具。
func (h *Host) CallTool(ctx context.Context, qualifiedName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	serverName, toolName, ok := strings.Cut(qualifiedName, NameSeparator)
	if !ok {
		return nil, fmt.Errorf("工具名 '%s' 缺少服务器前缀", qualifiedName)
	}

	h.mu.RLock()
	c, exists := h.servers[serverName]
	h.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("MCP 服务器 '%s' 未连接", serverName)
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("调用工具 '%s' 失败: %w", qualifiedName, err)
	}
	return res, nil
}

// CloseAll 关闭全部连接。
func (h *Host) CloseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, c := range h.servers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.servers = make(map[string]client.MCPClient)
	return errors.Join(errs...)
}

// ResultText 把工具结果中的文本内容拼接为一个字符串。
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
