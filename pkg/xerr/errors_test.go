package xerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

var errBlocked = Define(codes.FailedPrecondition, "WITHDRAWAL_BLOCKED", "withdrawal blocked")

func TestWithMsg_KeepsIdentity(t *testing.T) {
	err := errBlocked.WithMsg("WithdrawalBlocked: %s", "daily limit exceeded")

	assert.True(t, errors.Is(err, errBlocked))
	assert.Equal(t, "withdrawal blocked", errBlocked.Message, "哨兵不能被修改")
	assert.Contains(t, err.Error(), "daily limit exceeded")
	assert.NotEmpty(t, err.Stack())
}

func TestWrap(t *testing.T) {
	base := errors.New("connection reset")

	err := Wrap(base, codes.Unavailable, "call provider")
	xe, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unavailable, xe.Code)
	assert.True(t, errors.Is(err, base))

	// 已经是业务错误的保留原 reason
	wrapped := Wrap(fmt.Errorf("ctx: %w", errBlocked.WithMsg("x")), codes.Internal, "outer")
	assert.True(t, errors.Is(wrapped, errBlocked))
	assert.Equal(t, codes.FailedPrecondition, CodeOf(wrapped))

	assert.Nil(t, Wrap(nil, codes.Internal, "noop"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, codes.OK, CodeOf(nil))
	assert.Equal(t, codes.Internal, CodeOf(errors.New("boom")))
	assert.Equal(t, codes.InvalidArgument, CodeOf(New(codes.InvalidArgument, "bad")))
}
