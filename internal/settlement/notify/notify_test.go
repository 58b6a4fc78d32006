package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
)

type chanNotifier struct {
	ch  chan domain.Notice
	err error
}

func (c chanNotifier) Notify(_ context.Context, n domain.Notice) error {
	c.ch <- n
	return c.err
}

func TestFire(t *testing.T) {
	n := chanNotifier{ch: make(chan domain.Notice, 1), err: errors.New("smtp down")}
	ctx, cancel := context.WithCancel(context.Background())
	Fire(ctx, n, domain.Notice{Kind: domain.NoticePayoutCompleted, UserID: 7})
	cancel()

	select {
	case got := <-n.ch:
		assert.Equal(t, domain.NoticePayoutCompleted, got.Kind)
		assert.False(t, got.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("notice not delivered")
	}

	// nil notifier 直接忽略
	Fire(context.Background(), nil, domain.Notice{})
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), domain.Notice{Kind: domain.NoticeDisputeResolved}))
}
