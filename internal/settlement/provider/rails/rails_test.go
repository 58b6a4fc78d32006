package rails

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRail struct{ got []domain.PayoutOrder }

func (s *stubRail) Send(_ context.Context, o domain.PayoutOrder) (string, error) {
	s.got = append(s.got, o)
	return "ext-1", nil
}

func TestDispatcher(t *testing.T) {
	pp := &stubRail{}
	d := NewDispatcher(map[domain.MethodType]domain.PayoutRail{domain.MethodPayPal: pp})

	id, err := d.Send(context.Background(), domain.PayoutOrder{PayoutID: 1, Method: domain.MethodPayPal})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
	assert.Len(t, pp.got, 1)

	_, err = d.Send(context.Background(), domain.PayoutOrder{PayoutID: 2, Method: domain.MethodBankTransfer})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestHTTPRail(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"amount":"85.00"`)
		if r.Header.Get("Idempotency-Key") == "payout-9-2" {
			_, _ = w.Write([]byte(`{"id":"","status":"failed","failure_reason":"account closed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"tr_1","status":"pending"}`))
	}))
	defer srv.Close()

	r := NewHTTPRail(Config{Name: "paypal", BaseURL: srv.URL, APIKey: "k"})
	order := domain.PayoutOrder{PayoutID: 9, ResearcherID: 3, Amount: domain.NewMoney(8500, domain.USD), Method: domain.MethodPayPal, Attempt: 1}

	id, err := r.Send(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "tr_1", id)

	order.Attempt = 2
	_, err = r.Send(context.Background(), order)
	assert.True(t, errors.Is(err, httpx.ErrRejected))
	assert.Equal(t, []string{"payout-9-1", "payout-9-2"}, keys)
}
