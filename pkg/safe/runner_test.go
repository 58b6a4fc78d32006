package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoCtx_SurvivesCancelAndPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), "request_id", "r-1"))
	cancel()

	done := make(chan string, 1)
	GoCtx(ctx, func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		done <- ctx.Value("request_id").(string)
	})
	select {
	case rid := <-done:
		assert.Equal(t, "r-1", rid)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}

	// panic 不会把进程带走
	finished := make(chan struct{})
	Go(func() {
		defer close(finished)
		panic("boom")
	})
	<-finished
}
