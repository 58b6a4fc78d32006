package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (r *recorder) Notify(_ context.Context, n domain.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recorder) users() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.UserID)
	}
	return out
}

const (
	researcher = int64(20)
	owner      = int64(11)
)

func newService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	repo, db := storetest.NewRepo(t)
	storetest.SeedSubmission(t, db, domain.SubmissionRef{ID: 1, ProgramID: 1, ResearcherID: researcher, CompanyID: 10, CompanyOwnerID: owner})
	rec := &recorder{}
	return NewService(repo, nil, rec), rec
}

func TestCreateDispute(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		sub      int64
		by       int64
		typ      string
		desc     string
		sentinel error
	}{
		{"stranger", 1, 99, "payment_amount", "too low", domain.ErrNotAuthorized},
		{"unknown type", 1, researcher, "refund", "x", domain.ErrValidation},
		{"empty description", 1, researcher, "other", "   ", domain.ErrValidation},
		{"unknown submission", 404, researcher, "other", "x", domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateDispute(ctx, tc.sub, tc.by, tc.typ, tc.desc)
			assert.True(t, errors.Is(err, tc.sentinel), "got %v", err)
		})
	}

	d, err := svc.CreateDispute(ctx, 1, researcher, "payment_amount", "bounty lower than the table")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeOpen, d.Status)
	assert.Equal(t, domain.OwnerResearcher, d.DisputedByRole)

	_, err = svc.CreateDispute(ctx, 1, owner, "commission", "rate is wrong")
	assert.True(t, errors.Is(err, domain.ErrConflict))

	list, err := svc.ListDisputes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResolveDispute(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDispute(ctx, 1, owner, "payment_delay", "payout stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.OwnerCompany, d.DisputedByRole)

	_, err = svc.ResolveDispute(ctx, d.ID, domain.DisputeUnderReview, "", 1)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	d, err = svc.StartReview(ctx, d.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeUnderReview, d.Status)
	_, err = svc.StartReview(ctx, d.ID, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	d, err = svc.ResolveDispute(ctx, d.ID, domain.DisputeResolved, "payout retried", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeResolved, d.Status)
	assert.Equal(t, "payout retried", d.Resolution)
	require.NotNil(t, d.ResolvedBy)
	assert.Equal(t, int64(1), *d.ResolvedBy)
	assert.NotNil(t, d.ResolvedAt)

	again, err := svc.ResolveDispute(ctx, d.ID, domain.DisputeResolved, "ignored", 2)
	require.NoError(t, err)
	assert.Equal(t, "payout retried", again.Resolution)

	_, err = svc.ResolveDispute(ctx, d.ID, domain.DisputeRejected, "no", 1)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	assert.Eventually(t, func() bool { return len(rec.users()) == 2 }, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []int64{researcher, owner}, rec.users())

	events, err := svc.History(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.DisputeOpen, events[0].ToStatus)
	assert.Equal(t, domain.DisputeUnderReview, events[1].ToStatus)
	assert.Equal(t, domain.DisputeResolved, events[2].ToStatus)

	// 结案后可以重新发起
	_, err = svc.CreateDispute(ctx, 1, researcher, "other", "new issue")
	assert.NoError(t, err)
}

func TestResolveDispute_Concurrent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d, err := svc.CreateDispute(ctx, 1, researcher, "other", "x")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ResolveDispute(ctx, d.ID, domain.DisputeRejected, "duplicate", 1)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	events, err := svc.History(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
