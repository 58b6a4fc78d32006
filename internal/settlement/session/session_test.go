package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	tok, err := s.Create(ctx, 42)
	require.NoError(t, err)

	id, err := s.Get(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, tok)
	assert.True(t, errors.Is(err, ErrNotFound))

	tok, _ = s.Create(ctx, 1)
	require.NoError(t, s.Delete(ctx, tok))
	_, err = s.Get(ctx, tok)
	assert.True(t, errors.Is(err, ErrNotFound))
}
