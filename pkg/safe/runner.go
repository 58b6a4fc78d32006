package safe

import (
	"context"
	"runtime/debug"

	"bountyhub.com/pkg/logger"
	"go.uber.org/zap"
)

// Go 安全启动协程
func Go(fn func()) {
	go func() {
		defer recovered(context.Background())
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，日志里保留请求链路信息。
// 协程通常比请求活得久，所以只继承 value，不继承取消
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer recovered(ctx)
		fn(ctx)
	}()
}

func recovered(ctx context.Context) {
	if r := recover(); r != nil {
		logger.Error(ctx, "goroutine panic recovered",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
