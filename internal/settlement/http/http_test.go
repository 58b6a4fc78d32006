package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/handler"
	"bountyhub.com/internal/settlement/provider/fiatpay"
	"bountyhub.com/internal/settlement/session"
	"bountyhub.com/pkg/common"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 只实现用到的方法，其余调用会 panic
type fakeFiat struct {
	handler.FiatService
	escrowCompany int64
	webhookSig    string
}

func (f *fakeFiat) CreateEscrowForBounty(_ context.Context, submissionID int64, amount domain.Money, companyID int64) (*domain.EscrowAccount, error) {
	f.escrowCompany = companyID
	if amount.Amount > 1000 {
		return nil, domain.ErrInsufficientBalance.WithMsg("company %d", companyID)
	}
	return &domain.EscrowAccount{ID: 1, SubmissionID: submissionID, CompanyID: companyID, Amount: amount.Amount, Status: domain.EscrowHeld}, nil
}

func (f *fakeFiat) HandleWebhook(_ context.Context, _ []byte, sig string) (*domain.PaymentIntent, error) {
	f.webhookSig = sig
	if sig != "good" {
		return nil, domain.ErrInvalidSignature
	}
	return &domain.PaymentIntent{ID: 1, CompanyID: 10, Status: domain.IntentSucceeded}, nil
}

func (f *fakeFiat) RefundExpiredEscrows(context.Context, time.Time, int) ([]domain.EscrowAccount, error) {
	return []domain.EscrowAccount{{ID: 1, CompanyID: 12}, {ID: 2, CompanyID: 13}}, nil
}

func (f *fakeFiat) RefundFailedPayout(_ context.Context, _, payoutID int64) (*domain.Payout, error) {
	return &domain.Payout{ID: payoutID, SubmissionID: 4, ResearcherID: 20, Status: domain.PayoutCancelled}, nil
}

func (f *fakeFiat) GetEscrowBySubmission(_ context.Context, submissionID int64) (*domain.EscrowAccount, error) {
	return &domain.EscrowAccount{ID: 9, SubmissionID: submissionID, CompanyID: 14, Status: domain.EscrowRefunded}, nil
}

func (f *fakeFiat) RetryPayout(_ context.Context, adminID, payoutID int64) (*domain.Payout, error) {
	return &domain.Payout{ID: payoutID, ResearcherID: adminID * 100, Status: domain.PayoutCompleted}, nil
}

type fakeDisputes struct {
	handler.DisputeService
	resolvedBy int64
}

func (f *fakeDisputes) ResolveDispute(_ context.Context, id int64, status domain.DisputeStatus, resolution string, by int64) (*domain.PaymentDispute, error) {
	f.resolvedBy = by
	return &domain.PaymentDispute{ID: id, Status: status, Resolution: resolution}, nil
}

type fakeBalances struct {
	mu          sync.Mutex
	invalidated []string
}

func (*fakeBalances) GetWallet(_ context.Context, owner domain.OwnerType, id int64) (*domain.Wallet, error) {
	return &domain.Wallet{OwnerType: owner, OwnerID: id, Currency: domain.USD, Balance: 42}, nil
}

func (b *fakeBalances) Invalidate(_ context.Context, owner domain.OwnerType, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, fmt.Sprintf("%s:%d", owner, id))
}

func (b *fakeBalances) take() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.invalidated
	b.invalidated = nil
	return out
}

type env struct {
	engine   *gin.Engine
	fiat     *fakeFiat
	disputes *fakeDisputes
	sessions *session.MemoryStore
	balances *fakeBalances
}

func newEnv(t *testing.T) *env {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e := &env{fiat: &fakeFiat{}, disputes: &fakeDisputes{}, sessions: session.NewMemoryStore(time.Hour), balances: &fakeBalances{}}
	h := handler.New(e.fiat, nil, e.disputes, e.balances, domain.USD)
	e.engine = NewEngine(ctx, Config{ServiceName: "test", RPS: 1000, Burst: 1000}, h, e.sessions)
	return e
}

func (e *env) do(method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, common.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var resp common.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCreateEscrow(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name       string
		body       string
		headers    map[string]string
		wantStatus int
		wantReason string
	}{
		{"no actor", `{"submission_id":1,"amount":100}`, nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"bad body", `{"amount":"ten"}`, map[string]string{handler.HeaderCompanyID: "10"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad currency", `{"submission_id":1,"amount":100,"currency":"XYZ"}`, map[string]string{handler.HeaderCompanyID: "10"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"insufficient", `{"submission_id":1,"amount":5000}`, map[string]string{handler.HeaderCompanyID: "10"}, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{"ok", `{"submission_id":1,"amount":500}`, map[string]string{handler.HeaderCompanyID: "10"}, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := e.do(http.MethodPost, "/api/v1/escrows", tc.body, tc.headers)
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tc.wantReason, resp.Reason)
			assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))
		})
	}
	assert.Equal(t, int64(10), e.fiat.escrowCompany)
}

func TestFiatWebhook(t *testing.T) {
	e := newEnv(t)

	w, resp := e.do(http.MethodPost, "/api/v1/webhooks/fiat", `{}`, map[string]string{fiatpay.SignatureHeader: "forged"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", resp.Reason)

	w, _ = e.do(http.MethodPost, "/api/v1/webhooks/fiat", `{}`, map[string]string{fiatpay.SignatureHeader: "good"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}

func TestCompanyCreditsInvalidateBalance(t *testing.T) {
	e := newEnv(t)
	token, err := e.sessions.Create(context.Background(), 7)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	w, _ := e.do(http.MethodPost, "/api/v1/webhooks/fiat", `{}`, map[string]string{fiatpay.SignatureHeader: "forged"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, e.balances.take())

	w, _ = e.do(http.MethodPost, "/api/v1/webhooks/fiat", `{}`, map[string]string{fiatpay.SignatureHeader: "good"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"company:10"}, e.balances.take())

	w, resp := e.do(http.MethodPost, "/api/v1/admin/escrows/refund-expired", `{"limit":5}`, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data, _ := resp.Data.(map[string]any)
	assert.EqualValues(t, 2, data["refunded"])
	assert.Equal(t, []string{"company:12", "company:13"}, e.balances.take())

	w, _ = e.do(http.MethodPost, "/api/v1/admin/payouts/3/refund", "", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{"company:14", "researcher:20"}, e.balances.take())
}

func TestAdminSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	w, _ := e.do(http.MethodPost, "/api/v1/admin/payouts/5/retry", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(http.MethodPost, "/api/v1/admin/payouts/5/retry", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := e.sessions.Create(ctx, 7)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	w, resp := e.do(http.MethodPost, "/api/v1/admin/payouts/5/retry", "", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data, _ := resp.Data.(map[string]any)
	assert.EqualValues(t, 700, data["researcher_id"])

	w, _ = e.do(http.MethodPost, "/api/v1/admin/disputes/3/resolve", `{"status":"rejected","resolution":"no evidence"}`, map[string]string{"X-Admin-Token": token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), e.disputes.resolvedBy)

	w, _ = e.do(http.MethodDelete, "/api/v1/admin/session", "", auth)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodPost, "/api/v1/admin/payouts/5/retry", "", auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetWallet(t *testing.T) {
	e := newEnv(t)

	_, resp := e.do(http.MethodGet, "/api/v1/wallet", "", map[string]string{handler.HeaderUserID: "20"})
	data, _ := resp.Data.(map[string]any)
	assert.Equal(t, "researcher", data["owner_type"])
	assert.EqualValues(t, 42, data["balance"])

	_, resp = e.do(http.MethodGet, "/api/v1/wallet", "", map[string]string{handler.HeaderCompanyID: "10"})
	data, _ = resp.Data.(map[string]any)
	assert.Equal(t, "company", data["owner_type"])
}
