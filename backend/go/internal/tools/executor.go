package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Giorgio/backend/go/internal/models"
	"Giorgio/backend/go/pkg/logger"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// Executor 按名称执行一组工具。每次调用都有独立超时，处理函数的 panic 会被恢复。
type Executor struct {
	handlers map[string]server.ToolHandlerFunc
	timeout  time.Duration
}

// NewExecutor 为给定工具集创建执行器。
//
// 参数:
//
//	tools: 可调用的工具及其处理函数
//	timeout: 单次调用超时，<=0 时为 30 秒
//
// 返回值:
//
//	*Executor: 执行器实例
func NewExecutor(tools []server.ServerTool, timeout time.Duration) *Executor {
	handlers := make(map[string]server.ToolHandlerFunc, len(tools))
	for _, t := range tools {
		handlers[t.Tool.Name] = t.Handler
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{handlers: handlers, timeout: timeout}
}

// Execute 执行单个函数调用，总是返回一个观察结果。
// 成功时结果放在 "output" 键，未知工具、超时、错误和 IsError 结果放在 "error" 键。
func (e *Executor) Execute(ctx context.Context, call *models.FunctionCall) models.FunctionResponse {
	resp := models.FunctionResponse{ID: call.ID, Name: call.Name}
	out, err := e.run(ctx, call)
	if err != nil {
		resp.Response = map[string]any{"error": "❌ " + err.Error()}
		return resp
	}
	resp.Response = map[string]any{"output": out}
	return resp
}

// ExecuteAll 并发执行所有调用，结果顺序与调用顺序一致。
func (e *Executor) ExecuteAll(ctx context.Context, calls []*models.FunctionCall) []models.FunctionResponse {
	results := make([]models.FunctionResponse, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.Execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, call *models.FunctionCall) (string, error) {
	handler, ok := e.handlers[call.Name]
	if !ok {
		return "", fmt.Errorf("strumento sconosciuto: %s", call.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.New("tool_executor", "", "").
					WithPayload(map[string]interface{}{"tool": call.Name, "panic": fmt.Sprint(p)}).
					Error("工具处理函数 panic")
				done <- outcome{err: fmt.Errorf("errore interno nello strumento %s", call.Name)}
			}
		}()
		req := mcp.CallToolRequest{}
		req.Params.Name = call.Name
		req.Params.Arguments = call.Args
		res, err := handler(ctx, req)
		done <- outcome{res: res, err: err}
	}()

	var (
		o        outcome
		finished bool
	)
	select {
	case o = <-done:
		finished = true
	case <-ctx.Done():
		// 截止时刻恰好完成的结果仍然有效
		select {
		case o = <-done:
			finished = true
		default:
		}
	}
	return e.settle(call.Name, o, finished, ctx.Err())
}

// outcome 是处理函数的返回值。
type outcome struct {
	res *mcp.CallToolResult
	err error
}

// settle 把处理函数的结果转换为观察文本。
// 处理函数已返回成功结果时优先采用，即使上下文已经结束；未完成或因上下文失败时报告超时或取消。
func (e *Executor) settle(name string, o outcome, finished bool, ctxErr error) (string, error) {
	if ctxErr != nil && (!finished || o.err != nil) {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", fmt.Errorf("timeout dello strumento %s dopo %s", name, e.timeout)
		}
		return "", ctxErr
	}
	if o.err != nil {
		return "", fmt.Errorf("errore nell'esecuzione dello strumento %s: %v", name, o.err)
	}
	txt := resultText(o.res)
	if o.res != nil && o.res.IsError {
		return "", fmt.Errorf("errore nell'esecuzione dello strumento %s: %s", name, txt)
	}
	return txt, nil
}

// resultText 连接结果中的所有文本内容。
func resultText(res *mcp.CallToolResult) string {
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
