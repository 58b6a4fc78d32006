package ratelimit

import (
	"errors"
	"testing"
	"time"

	"bountyhub.com/pkg/xerr"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
)

func TestManager_TripsOnInfraErrors(t *testing.T) {
	m := NewManager("fiat", Rule{TripConsecutiveFailures: 3, Timeout: time.Minute}, nil)
	netErr := errors.New("dial tcp: connection refused")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Execute("create_intent", func() error { return netErr }), netErr)
	}
	err := m.Execute("create_intent", func() error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	// 不同 method 互不影响
	assert.NoError(t, m.Execute("retrieve_intent", func() error { return nil }))
}

func TestManager_BusinessErrorsDoNotTrip(t *testing.T) {
	m := NewManager("fiat", Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	bad := xerr.New(codes.InvalidArgument, "amount too small")

	for i := 0; i < 5; i++ {
		assert.Error(t, m.Execute("create_intent", func() error { return bad }))
	}
	assert.NoError(t, m.Execute("create_intent", func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, m.Get("create_intent").State())
}

func TestStore_Allow(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 2, time.Minute)
	assert.True(t, s.Allow("1.1.1.1:/api"))
	assert.True(t, s.Allow("1.1.1.1:/api"))
	assert.False(t, s.Allow("1.1.1.1:/api"))
	assert.True(t, s.Allow("2.2.2.2:/api"))

	assert.Equal(t, 2, s.Len())

	s.cleanup(time.Now())
	assert.Equal(t, 2, s.Len())
	s.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, s.Len())
}
