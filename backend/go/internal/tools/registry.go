// Package tools 为每个用户构建 Giorgio 可调用的工具集。
// 每个处理函数都闭包捕获所属用户，失败时返回以 ❌ 开头的文本而不是错误。
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/internal/todo"
	"Giorgio/backend/go/internal/websearch"
	"Giorgio/backend/go/pkg/logger"
	"Giorgio/backend/go/pkg/mcp_host"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MemoryManager 是记忆工具依赖的记忆服务。
type MemoryManager interface {
	StoreMemory(ctx context.Context, ownerID string, in models.StoreMemoryInput) (*models.MemoryRecord, error)
	SearchMemories(ctx context.Context, ownerID string, opts models.SearchOptions) models.SearchResult
	GetUserSummary(ctx context.Context, ownerID string) models.UserSummary
	ExtractMemoriesFromText(ctx context.Context, ownerID, text, source string) []models.MemoryRecord
}

// PageReader 读取网页为 Markdown。
type PageReader interface {
	Read(ctx context.Context, rawURL string) (string, error)
}

// ExternalTools 是外部 MCP 服务器的工具来源，由 mcp_host.Host 实现。
type ExternalTools interface {
	Tools(ctx context.Context) ([]mcp_host.NamedTool, map[string]error)
	CallTool(ctx context.Context, qualifiedName string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// Deps 汇总工具的依赖，为 nil 的依赖对应的工具不会注册。
type Deps struct {
	Todos    todo.Store
	Memory   MemoryManager
	Search   websearch.Searcher
	Pages    PageReader
	External ExternalTools
	// 记忆检索工具的默认参数
	SearchLimit     int
	SearchThreshold float64
}

// Registry 按用户构建工具集。
type Registry struct {
	deps     Deps
	external []mcp_host.NamedTool
	now      func() time.Time
}

// NewRegistry 创建工具注册表。
//
// 参数:
//
//	deps: 各工具依赖的后端，为 nil 的后端对应的工具不会注册。
//
// 返回值:
//
//	*Registry: 注册表实例，Build 时绑定用户。
func NewRegistry(deps Deps) *Registry {
	if deps.SearchLimit <= 0 {
		deps.SearchLimit = 5
	}
	if deps.SearchThreshold <= 0 {
		deps.SearchThreshold = 0.6
	}
	return &Registry{deps: deps, now: time.Now}
}

// LoadExternal 拉取一次外部 MCP 工具列表，之后每次 Build 都会带上这些工具。
// 单个服务器失败只记录日志。
func (r *Registry) LoadExternal(ctx context.Context) {
	if r.deps.External == nil {
		return
	}
	tools, failures := r.deps.External.Tools(ctx)
	for name, err := range failures {
		logger.New("tools", "", "").Err(err).WithPayload(map[string]interface{}{"server": name}).Warn("列出外部 MCP 工具失败")
	}
	r.external = tools
}

// Build 返回绑定到 ownerID 的新工具集。
func (r *Registry) Build(ownerID string) []server.ServerTool {
	var out []server.ServerTool
	if r.deps.Search != nil {
		out = append(out, r.searchWebTool())
	}
	if r.deps.Pages != nil {
		out = append(out, r.readWebPageTool())
	}
	if r.deps.Todos != nil {
		out = append(out, r.todoTools(ownerID)...)
	}
	if r.deps.Memory != nil {
		out = append(out, r.memoryTools(ownerID)...)
	}
	for _, nt := range r.external {
		out = append(out, r.externalTool(nt))
	}
	return out
}

// Definitions 返回工具的 schema，供模型调用时声明。
func Definitions(tools []server.ServerTool) []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Tool)
	}
	return defs
}

func text(s string) *mcp.CallToolResult {
	return mcp.NewToolResultText(s)
}

func failure(format string, args ...interface{}) *mcp.CallToolResult {
	return mcp.NewToolResultText("❌ " + fmt.Sprintf(format, args...))
}

// trimmedArg 读取字符串参数并去除首尾空白，缺失或类型不符时返回空串。
func trimmedArg(req mcp.CallToolRequest, key string) string {
	return strings.TrimSpace(req.GetString(key, ""))
}

// itDate 按意大利习惯格式化日期，例如 5/3/2025。
func itDate(t time.Time) string {
	return t.Local().Format("2/1/2006")
}

// plural 返回 "task" 或 "tasks"。
func plural(n int) string {
	if n == 1 {
		return "task"
	}
	return "tasks"
}
