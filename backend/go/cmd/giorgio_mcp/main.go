package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Giorgio/backend/go/internal/bootstrap"
	memsvc "Giorgio/backend/go/internal/memory/service"
	"Giorgio/backend/go/pkg/logger"

	"github.com/mark3labs/mcp-go/server"
)

// giorgio_mcp 通过 stdio 把某个用户的工具集暴露为 MCP 服务器。
// 日志写到 stderr，stdout 只用于协议消息。
func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	owner := flag.String("owner", "", "工具绑定的用户ID")
	withMemory := flag.Bool("memory", true, "是否提供记忆工具")
	flag.Parse()

	if *owner == "" {
		log.Fatal("必须通过 -owner 指定用户")
	}

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger.InitWithOutput(logger.ParseLevel(cfg.Logger.Level), os.Stderr)
	appLogger := logger.New("giorgio_mcp", "", *owner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &bootstrap.Resources{}
	defer res.Close()

	todos, err := bootstrap.Todos(ctx, cfg, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建待办清单存储失败")
	}

	// 外部 MCP 服务器不再转发，避免工具名嵌套
	cfg.MCP.Servers = nil

	var memoryService *memsvc.MemoryService
	if *withMemory {
		llmClient, err := bootstrap.LLM(ctx, cfg)
		if err != nil {
			appLogger.Err(err).Fatal("创建 LLM 客户端失败")
		}
		if memoryService, err = bootstrap.Memory(ctx, cfg, llmClient, res); err != nil {
			appLogger.Err(err).Fatal("创建记忆服务失败")
		}
	}
	registry, err := bootstrap.Registry(ctx, cfg, todos, memoryService, res)
	if err != nil {
		appLogger.Err(err).Fatal("创建工具注册表失败")
	}
	tools := registry.Build(*owner)

	s := server.NewMCPServer("giorgio", cfg.App.Version, server.WithToolCapabilities(false))
	s.AddTools(tools...)

	appLogger.WithPayload(map[string]interface{}{"tools": len(tools)}).Info("MCP stdio 服务启动")
	if err := server.ServeStdio(s); err != nil {
		appLogger.Err(err).Error("MCP 服务异常退出")
	}
}
