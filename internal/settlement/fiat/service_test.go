package fiat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bountyhub.com/internal/settlement/commission"
	"bountyhub.com/internal/settlement/domain"
	smysql "bountyhub.com/internal/settlement/repo/mysql"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/internal/settlement/storetest"
	"bountyhub.com/pkg/secure"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeProvider struct {
	mu        sync.Mutex
	intents   map[string]*domain.FiatIntent
	seq       int
	retrieved atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: make(map[string]*domain.FiatIntent)}
}

func (f *fakeProvider) CreateIntent(_ context.Context, req domain.FiatIntentRequest) (*domain.FiatIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "pi_" + string(rune('a'+f.seq))
	fi := &domain.FiatIntent{ID: id, ClientSecret: id + "_secret", Status: domain.IntentPending, Amount: req.Amount}
	f.intents[id] = fi
	cp := *fi
	return &cp, nil
}

func (f *fakeProvider) RetrieveIntent(_ context.Context, id string) (*domain.FiatIntent, error) {
	f.retrieved.Add(1)
	time.Sleep(10 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	fi, ok := f.intents[id]
	if !ok {
		return nil, domain.ErrProvider.WithMsg("no such intent")
	}
	cp := *fi
	return &cp, nil
}

func (f *fakeProvider) set(id string, st domain.IntentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = st
	if st == domain.IntentSucceeded {
		f.intents[id].LatestChargeID = "ch_" + id
	}
}

func (f *fakeProvider) ParseWebhook(payload []byte, sig string) (*domain.FiatEvent, error) {
	if sig != "ok" {
		return nil, domain.ErrInvalidSignature.WithMsg("signature mismatch")
	}
	var ev domain.FiatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type fakeRail struct {
	mu     sync.Mutex
	orders []domain.PayoutOrder
	err    error
	onSend func()
}

func (r *fakeRail) Send(_ context.Context, o domain.PayoutOrder) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	if r.onSend != nil {
		r.onSend()
	}
	if r.err != nil {
		return "", r.err
	}
	return "ext-" + string(o.Method), nil
}

type fixture struct {
	svc      *Service
	repo     *smysql.Repo
	db       *gorm.DB
	provider *fakeProvider
	rail     *fakeRail
}

const (
	companyID    = int64(10)
	ownerID      = int64(11)
	researcherID = int64(20)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, db := storetest.NewRepo(t)
	c, err := secure.NewCipher([]byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)
	f := &fixture{repo: repo, db: db, provider: newFakeProvider(), rail: &fakeRail{}}
	f.svc = NewService(Config{}, Deps{
		Store:      repo,
		Provider:   f.provider,
		Rail:       f.rail,
		Calculator: commission.NewCalculator(commission.DefaultRateBps, map[string]int{"enterprise": 1000}),
		Guard:      risk.NewGuard(risk.DefaultConfig(), risk.NewMemoryLimiter(), repo),
		Cipher:     c,
	})
	return f
}

func usd(cents int64) domain.Money { return domain.NewMoney(cents, domain.USD) }

func (f *fixture) balance(t *testing.T, owner domain.OwnerType, id int64) *domain.Wallet {
	t.Helper()
	w, err := f.repo.GetWallet(context.Background(), owner, id)
	require.NoError(t, err)
	return w
}

func (f *fixture) seed(t *testing.T, submissionID int64) {
	storetest.SeedSubmission(t, f.db, domain.SubmissionRef{ID: submissionID, ProgramID: 1, ResearcherID: researcherID, CompanyID: companyID, CompanyOwnerID: ownerID})
}

func (f *fixture) method(t *testing.T, typ domain.MethodType) *domain.PaymentMethod {
	t.Helper()
	details := map[string]string{"email": "researcher@example.com"}
	if typ == domain.MethodPlatformBalance {
		details = nil
	}
	m, err := f.svc.AddPaymentMethod(context.Background(), researcherID, typ, details, true)
	require.NoError(t, err)
	return m
}

func TestPaymentIntentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(0), "", "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.svc.CreatePaymentIntent(ctx, companyID, domain.NewMoney(100, domain.EUR), "", "")
	assert.True(t, errors.Is(err, domain.ErrCurrencyMismatch))

	p, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(50000), "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPending, p.Status)
	assert.NotEmpty(t, p.ClientSecret)

	_, err = f.svc.ConfirmPayment(ctx, p.ProviderIntentID)
	assert.True(t, errors.Is(err, domain.ErrPaymentNotCompleted))
	assert.Zero(t, f.balance(t, domain.OwnerCompany, companyID).Balance)

	f.provider.set(p.ProviderIntentID, domain.IntentSucceeded)
	got, err := f.svc.ConfirmPayment(ctx, p.ProviderIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSucceeded, got.Status)

	// 重复确认不重复入账
	_, err = f.svc.ConfirmPayment(ctx, p.ProviderIntentID)
	require.NoError(t, err)
	w := f.balance(t, domain.OwnerCompany, companyID)
	assert.Equal(t, int64(50000), w.Balance)
	assert.Equal(t, int64(50000), w.TotalDeposited)
}

func TestConfirmPayment_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(1000), "", "")
	require.NoError(t, err)
	f.provider.set(p.ProviderIntentID, domain.IntentSucceeded)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ConfirmPayment(ctx, p.ProviderIntentID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), f.balance(t, domain.OwnerCompany, companyID).Balance)
}

func TestConfirmPayment_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(1000), "", "")
	require.NoError(t, err)
	f.provider.set(p.ProviderIntentID, domain.IntentCanceled)

	_, err = f.svc.ConfirmPayment(ctx, p.ProviderIntentID)
	assert.True(t, errors.Is(err, domain.ErrPaymentNotCompleted))
	stored, err := f.repo.GetIntentByProviderID(ctx, p.ProviderIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentCanceled, stored.Status)
}

func TestCreatePaymentIntent_RateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(100), "", "1.2.3.4")
		require.NoError(t, err)
	}
	_, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(100), "", "1.2.3.4")
	assert.True(t, errors.Is(err, domain.ErrRateLimitExceeded))
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreatePaymentIntent(ctx, companyID, usd(7000), "", "")
	require.NoError(t, err)
	f.provider.set(p.ProviderIntentID, domain.IntentSucceeded)

	payload, _ := json.Marshal(domain.FiatEvent{ID: "evt_1", Type: domain.FiatEventSucceeded, IntentID: p.ProviderIntentID})

	_, err = f.svc.HandleWebhook(ctx, payload, "forged")
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
	assert.Zero(t, f.balance(t, domain.OwnerCompany, companyID).Balance)

	credited, err := f.svc.HandleWebhook(ctx, payload, "ok")
	require.NoError(t, err)
	require.NotNil(t, credited)
	assert.Equal(t, companyID, credited.CompanyID)
	_, err = f.svc.HandleWebhook(ctx, payload, "ok")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), f.balance(t, domain.OwnerCompany, companyID).Balance)

	// 未知 intent 直接 ack
	unknown, _ := json.Marshal(domain.FiatEvent{ID: "evt_2", Type: domain.FiatEventSucceeded, IntentID: "pi_unknown"})
	credited, err = f.svc.HandleWebhook(ctx, unknown, "ok")
	assert.NoError(t, err)
	assert.Nil(t, credited)

	p2, _ := f.svc.CreatePaymentIntent(ctx, companyID, usd(100), "", "")
	failed, _ := json.Marshal(domain.FiatEvent{ID: "evt_3", Type: domain.FiatEventFailed, IntentID: p2.ProviderIntentID, Reason: "card declined"})
	_, err = f.svc.HandleWebhook(ctx, failed, "ok")
	require.NoError(t, err)
	stored, _ := f.repo.GetIntentByProviderID(ctx, p2.ProviderIntentID)
	assert.Equal(t, domain.IntentFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)
}

func TestCreateEscrowForBounty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 1)
	f.seed(t, 2)
	storetest.Fund(t, f.repo, domain.OwnerCompany, companyID, 15000)

	_, err := f.svc.CreateEscrowForBounty(ctx, 999, usd(100), companyID)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.svc.CreateEscrowForBounty(ctx, 1, usd(100), companyID+1)
	assert.True(t, errors.Is(err, domain.ErrNotAuthorized))

	e, err := f.svc.CreateEscrowForBounty(ctx, 1, usd(10000), companyID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowHeld, e.Status)
	assert.Equal(t, int64(1500), e.PlatformCommission)
	assert.Equal(t, int64(8500), e.ResearcherPayout)
	assert.True(t, e.Balanced())
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), e.ExpiresAt, time.Minute)

	w := f.balance(t, domain.OwnerCompany, companyID)
	assert.Equal(t, int64(5000), w.Balance)
	assert.Equal(t, int64(10000), w.TotalPaid)

	_, err = f.svc.CreateEscrowForBounty(ctx, 1, usd(100), companyID)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = f.svc.CreateEscrowForBounty(ctx, 2, usd(5001), companyID)
	assert.True(t, errors.Is(err, domain.ErrInsufficientBalance))
	assert.Equal(t, int64(5000), f.balance(t, domain.OwnerCompany, companyID).Balance)

	var n int64
	require.NoError(t, f.db.Model(&domain.Commission{}).Where("submission_id = ?", 1).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

type staticTier string

func (s staticTier) TierOf(context.Context, int64) (string, error) { return string(s), nil }

func TestCreateEscrowForBounty_Tier(t *testing.T) {
	f := newFixture(t)
	f.svc.tiers = staticTier("enterprise")
	f.seed(t, 1)
	storetest.Fund(t, f.repo, domain.OwnerCompany, companyID, 10000)

	e, err := f.svc.CreateEscrowForBounty(context.Background(), 1, usd(10000), companyID)
	require.NoError(t, err)
	assert.Equal(t, 1000, e.CommissionRateBps)
	assert.Equal(t, int64(1000), e.PlatformCommission)
}

func (f *fixture) escrow(t *testing.T, submissionID, amount int64) *domain.EscrowAccount {
	t.Helper()
	f.seed(t, submissionID)
	storetest.Fund(t, f.repo, domain.OwnerCompany, companyID, amount)
	e, err := f.svc.CreateEscrowForBounty(context.Background(), submissionID, usd(amount), companyID)
	require.NoError(t, err)
	return e
}

func TestReleaseEscrowAndPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.escrow(t, 1, 10000)
	m := f.method(t, domain.MethodPayPal)

	_, err := f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 404, PaymentMethodID: m.ID})
	assert.True(t, errors.Is(err, domain.ErrEscrowNotFound))

	p, err := f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 1, PaymentMethodID: m.ID, Details: map[string]string{"note": "thanks"}})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p.Status)
	assert.Equal(t, int64(8500), p.Amount)
	assert.Equal(t, "ext-paypal", p.ExternalTransactionID)
	assert.Equal(t, 1, p.Attempts)

	require.Len(t, f.rail.orders, 1)
	order := f.rail.orders[0]
	assert.Equal(t, "researcher@example.com", order.Details["email"])
	assert.Equal(t, "thanks", order.Details["note"])
	assert.Equal(t, 1, order.Attempt)

	w := f.balance(t, domain.OwnerResearcher, researcherID)
	assert.Equal(t, int64(8500), w.TotalPaid)
	assert.Zero(t, w.Balance, "外部打款不进站内余额")

	_, err = f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 1, PaymentMethodID: m.ID})
	assert.True(t, errors.Is(err, domain.ErrEscrowNotHeld))
}

func TestReleaseEscrow_ForeignMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.escrow(t, 1, 1000)
	other, err := f.svc.AddPaymentMethod(ctx, researcherID+1, domain.MethodPayPal, map[string]string{"email": "x@y.z"}, false)
	require.NoError(t, err)

	_, err = f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 1, PaymentMethodID: other.ID})
	assert.True(t, errors.Is(err, domain.ErrNotAuthorized))
	e, _ := f.svc.GetEscrowBySubmission(ctx, 1)
	assert.Equal(t, domain.EscrowHeld, e.Status)
}

func TestPayout_PlatformBalance(t *testing.T) {
	f := newFixture(t)
	f.escrow(t, 1, 10000)
	m := f.method(t, domain.MethodPlatformBalance)

	p, err := f.svc.ReleaseEscrowAndPayout(context.Background(), ReleaseRequest{SubmissionID: 1, PaymentMethodID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p.Status)
	assert.Empty(t, f.rail.orders)
	assert.Equal(t, int64(8500), f.balance(t, domain.OwnerResearcher, researcherID).Balance)
}

func TestPayout_FailureRetryRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.escrow(t, 1, 10000)
	f.escrow(t, 2, 10000)
	m := f.method(t, domain.MethodBankTransfer)

	f.rail.err = domain.ErrProvider.WithMsg("bank timeout")
	p, err := f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 1, PaymentMethodID: m.ID})
	require.NoError(t, err, "打款失败不作为错误返回")
	assert.Equal(t, domain.PayoutFailed, p.Status)
	assert.Contains(t, p.FailureReason, "bank timeout")

	f.rail.err = nil
	p, err = f.svc.RetryPayout(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p.Status)
	assert.Equal(t, 2, p.Attempts)
	assert.Equal(t, 2, f.rail.orders[1].Attempt)

	_, err = f.svc.RetryPayout(ctx, 1, p.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	// 第二笔失败后退款给公司
	f.rail.err = errors.New("account closed")
	p2, err := f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 2, PaymentMethodID: m.ID})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutFailed, p2.Status)

	p2, err = f.svc.RefundFailedPayout(ctx, 1, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCancelled, p2.Status)

	e, _ := f.svc.GetEscrowBySubmission(ctx, 2)
	assert.Equal(t, domain.EscrowRefunded, e.Status)
	w := f.balance(t, domain.OwnerCompany, companyID)
	assert.Equal(t, int64(10000), w.Balance)
	assert.Equal(t, int64(10000), w.TotalPaid)

	var c domain.Commission
	require.NoError(t, f.db.Where("escrow_id = ?", e.ID).First(&c).Error)
	assert.True(t, c.Reversed)
}

func TestPayout_CallerCanceled(t *testing.T) {
	f := newFixture(t)
	f.escrow(t, 1, 10000)
	f.escrow(t, 2, 10000)
	m := f.method(t, domain.MethodBankTransfer)

	// 通道已经受理后调用方断开，打款仍要落到终态
	ctx, cancel := context.WithCancel(context.Background())
	f.rail.onSend = cancel
	p, err := f.svc.ReleaseEscrowAndPayout(ctx, ReleaseRequest{SubmissionID: 1, PaymentMethodID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p.Status)
	assert.Equal(t, "ext-bank_transfer", p.ExternalTransactionID)

	stored, err := f.repo.GetPayout(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, stored.Status)

	// 失败分支同样要写成 failed，运营才能重试或退款
	ctx2, cancel2 := context.WithCancel(context.Background())
	f.rail.onSend = cancel2
	f.rail.err = domain.ErrProvider.WithMsg("bank timeout")
	p2, err := f.svc.ReleaseEscrowAndPayout(ctx2, ReleaseRequest{SubmissionID: 2, PaymentMethodID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutFailed, p2.Status)

	f.rail.err = nil
	f.rail.onSend = nil
	p2, err = f.svc.RetryPayout(context.Background(), 1, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p2.Status)
}

func TestRequestPayout_Review(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.escrow(t, 1, 1_000_000) // payout = 8500.00
	m := f.method(t, domain.MethodPayPal)

	_, err := f.svc.RequestPayout(ctx, researcherID+1, 1, m.ID, nil, "5.5.5.5")
	assert.True(t, errors.Is(err, domain.ErrNotAuthorized))

	p, err := f.svc.RequestPayout(ctx, researcherID, 1, m.ID, nil, "5.5.5.5")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPending, p.Status)
	assert.True(t, p.ReviewRequired)
	assert.Empty(t, f.rail.orders)

	_, err = f.svc.ProcessPayout(ctx, p.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	p, err = f.svc.ApproveReviewedPayout(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, p.Status)
	assert.False(t, p.ReviewRequired)
}

func TestRequestPayout_Velocity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.method(t, domain.MethodPayPal)
	for i := int64(1); i <= 4; i++ {
		f.escrow(t, i, 200000) // payout = 1700.00，属于大额
	}
	for i := int64(1); i <= 3; i++ {
		p, err := f.svc.RequestPayout(ctx, researcherID, i, m.ID, nil, "")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, p.Status)
	}
	_, err := f.svc.RequestPayout(ctx, researcherID, 4, m.ID, nil, "")
	require.True(t, errors.Is(err, domain.ErrPayoutBlocked))
	assert.Contains(t, err.Error(), "PayoutBlocked")

	e, _ := f.svc.GetEscrowBySubmission(ctx, 4)
	assert.Equal(t, domain.EscrowHeld, e.Status, "被拦截的释放不改变托管状态")
}

func TestRefundExpiredEscrows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.escrow(t, 1, 4000)
	f.escrow(t, 2, 6000)

	list, err := f.svc.RefundExpiredEscrows(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.RefundExpiredEscrows(ctx, time.Now().UTC().Add(31*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, companyID, list[0].CompanyID)

	w := f.balance(t, domain.OwnerCompany, companyID)
	assert.Equal(t, int64(10000), w.Balance)
	assert.Zero(t, w.TotalPaid)
}

func TestPaymentMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddPaymentMethod(ctx, researcherID, domain.MethodType("cheque"), nil, false)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = f.svc.AddPaymentMethod(ctx, researcherID, domain.MethodPayPal, nil, false)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	m := f.method(t, domain.MethodPayPal)
	assert.Equal(t, "paypal resear....com", m.Label)
	assert.NotContains(t, m.Details, "researcher@example.com")

	bank, err := f.svc.AddPaymentMethod(ctx, researcherID, domain.MethodBankTransfer,
		map[string]string{"account_number": "12345678"}, false)
	require.NoError(t, err)
	assert.Equal(t, "bank_transfer ***78", bank.Label)

	list, err := f.svc.ListPaymentMethods(ctx, researcherID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
