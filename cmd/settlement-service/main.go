package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bountyhub.com/internal/settlement"
	"bountyhub.com/internal/settlement/app"
	"bountyhub.com/pkg/config"
	"bountyhub.com/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 收到 SIGINT/SIGTERM 时取消，HTTP 停止接入后等进行中的请求完成
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := settlement.DefaultCfg()
	if _, err := config.LoadAndWatch("settlement-service", cfg); err != nil {
		panic(fmt.Sprintf("加载配置出错 %+v", err))
	}
	logger.Init(cfg.Name, cfg.LogLevel)
	defer logger.Sync()
	logger.Info(ctx, "服务开始启动", zap.String("addr", cfg.HTTP.Addr))

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "build app failed", zap.Error(err))
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "service exited with error", zap.Error(err))
		return
	}
	logger.Info(ctx, "service stopped")
}
