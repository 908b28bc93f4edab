package entitlement

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/domain"
	"chatgw/internal/store"
)

type stubStore struct {
	ent      store.Entitlement
	found    bool
	quota    store.QuotaResult
	consumed int
	downs    int
}

func (s *stubStore) ActiveEntitlement(_ context.Context, _ string) (store.Entitlement, bool, error) {
	return s.ent, s.found, nil
}

func (s *stubStore) ConsumeBasicQuota(_ context.Context, _ string, _ int, _ time.Time) (store.QuotaResult, error) {
	s.consumed++
	return s.quota, nil
}

func (s *stubStore) DowngradeToBasic(_ context.Context, _ string, _ int, _ time.Time) error {
	s.downs++
	return nil
}

func newEngine(st *stubStore) *Engine {
	e := NewEngine(st, 10, slog.Default())
	e.Now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestPremiumAllowsAudioWithoutConsuming(t *testing.T) {
	st := &stubStore{
		found: true,
		ent: store.Entitlement{
			Tier:       domain.PlanPremium,
			ExpireDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	e := newEngine(st)

	d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapAudio)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, st.consumed)
}

func TestStandardDeniesAudio(t *testing.T) {
	st := &stubStore{
		found: true,
		ent: store.Entitlement{
			Tier:       domain.PlanStandard,
			ExpireDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	e := newEngine(st)

	d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapAudio)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoAccess, d.Reason)
}

func TestExpiredPaidPlanDowngrades(t *testing.T) {
	st := &stubStore{
		found: true,
		ent: store.Entitlement{
			Tier:       domain.PlanPremium,
			ExpireDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	e := newEngine(st)

	d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapText)
	require.ErrorIs(t, err, domain.ErrSubscriptionExpired)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonExpired, d.Reason)
	assert.Equal(t, 1, st.downs)
}

func TestBasicConsumesQuota(t *testing.T) {
	renew := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		found: true,
		ent:   store.Entitlement{Tier: domain.PlanBasic},
		quota: store.QuotaResult{Allowed: true, Remaining: 9, ExpireDate: renew},
	}
	e := newEngine(st)

	d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapText)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, st.consumed)
}

func TestBasicQuotaExhausted(t *testing.T) {
	renew := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		found: true,
		ent:   store.Entitlement{Tier: domain.PlanBasic},
		quota: store.QuotaResult{Allowed: false, ExpireDate: renew},
	}
	e := newEngine(st)

	d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapText)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonQuota, d.Reason)
	assert.Equal(t, renew, d.RenewAt)
}

func TestBasicMetersImageAndAudio(t *testing.T) {
	renew := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	st := &stubStore{
		found: true,
		ent:   store.Entitlement{Tier: domain.PlanBasic},
		quota: store.QuotaResult{Allowed: true, Remaining: 9, ExpireDate: renew},
	}
	e := newEngine(st)

	for _, cap := range []domain.Capability{domain.CapImage, domain.CapAudio} {
		d, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, cap)
		require.NoError(t, err)
		assert.True(t, d.Allowed, string(cap))
	}
	assert.Equal(t, 2, st.consumed)
}

func TestMissingEntitlementIsConfigurationError(t *testing.T) {
	e := newEngine(&stubStore{found: false})

	_, err := e.CheckAndConsume(context.Background(), store.User{ID: "u1"}, domain.CapText)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
