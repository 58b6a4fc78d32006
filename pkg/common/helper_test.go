package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bountyhub.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestFailErr(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
		wantMsg    string
	}{
		{"validation", xerr.Define(codes.InvalidArgument, "VALIDATION_ERROR", "amount must be positive"), http.StatusBadRequest, "VALIDATION_ERROR", "amount must be positive"},
		{"insufficient", xerr.Define(codes.FailedPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance"), http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "insufficient balance"},
		{"rate limit", xerr.Define(codes.ResourceExhausted, "RATE_LIMIT_EXCEEDED", "slow down"), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "slow down"},
		{"provider hides detail", xerr.Define(codes.Unavailable, "PROVIDER_ERROR", "x").WithMsg("fiatpay: http 502 secret"), http.StatusServiceUnavailable, "PROVIDER_ERROR", msgTryLater},
		{"plain error", errors.New("sql: connection refused"), http.StatusInternalServerError, "INTERNAL", msgTryLater},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

			FailErr(c, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantReason, resp.Reason)
			assert.Equal(t, tc.wantMsg, resp.Message)
			assert.Nil(t, resp.Data)
		})
	}
}

func TestValidRequestID(t *testing.T) {
	assert.True(t, ValidRequestID(New()))
	assert.True(t, ValidRequestID("gw-123"))
	assert.False(t, ValidRequestID(""))
	assert.False(t, ValidRequestID("a b"))
	assert.False(t, ValidRequestID("line\nbreak"))
	assert.False(t, ValidRequestID(string(make([]byte, 65))))
}
