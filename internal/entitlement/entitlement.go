// Package entitlement decides whether a message may reach the AI
// backend: paid tiers gate capabilities, the free tier burns one unit of
// its weekly allowance per request of any kind, and expired paid plans
// are downgraded on first touch.
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"chatgw/internal/domain"
	"chatgw/internal/observability"
	"chatgw/internal/store"
	"chatgw/internal/util"
)

// Denial reasons surfaced on Decision.Reason.
const (
	ReasonQuota    = "quota"
	ReasonExpired  = "expired"
	ReasonNoAccess = "no_access"
)

type Store interface {
	ActiveEntitlement(ctx context.Context, userID string) (store.Entitlement, bool, error)
	ConsumeBasicQuota(ctx context.Context, userID string, weeklyCap int, now time.Time) (store.QuotaResult, error)
	DowngradeToBasic(ctx context.Context, userID string, weeklyCap int, now time.Time) error
}

type Decision struct {
	Allowed bool
	Reason  string
	// RenewAt carries the next window start for quota denials.
	RenewAt time.Time
}

type Engine struct {
	Store     Store
	WeeklyCap int
	Log       *slog.Logger

	Now func() time.Time
}

func NewEngine(st Store, weeklyCap int, log *slog.Logger) *Engine {
	return &Engine{Store: st, WeeklyCap: weeklyCap, Log: log, Now: util.NowUTC}
}

// CheckAndConsume gates one request. For metered tiers a successful
// decision has already spent the unit, so callers must only invoke it
// once per inbound message.
func (e *Engine) CheckAndConsume(ctx context.Context, user store.User, cap domain.Capability) (Decision, error) {
	now := e.Now()

	ent, ok, err := e.Store.ActiveEntitlement(ctx, user.ID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, domain.ErrConfiguration
	}

	if ent.Tier != domain.PlanBasic {
		if !ent.ExpireDate.After(now) {
			if err := e.Store.DowngradeToBasic(ctx, user.ID, e.WeeklyCap, now); err != nil {
				return Decision{}, err
			}
			e.Log.Info("paid plan expired, downgraded",
				"user_id", user.ID, "tier", string(ent.Tier))
			observability.QuotaDenied.WithLabelValues(ReasonExpired).Inc()
			return Decision{Allowed: false, Reason: ReasonExpired}, domain.ErrSubscriptionExpired
		}
		if !ent.Tier.Allows(cap) {
			observability.QuotaDenied.WithLabelValues(ReasonNoAccess).Inc()
			return Decision{Allowed: false, Reason: ReasonNoAccess}, nil
		}
		return Decision{Allowed: true}, nil
	}

	// Free tier: every capability is granted but each request burns one
	// unit of the weekly allowance.
	res, err := e.Store.ConsumeBasicQuota(ctx, user.ID, e.WeeklyCap, now)
	if err != nil {
		return Decision{}, err
	}
	if !res.Allowed {
		observability.QuotaDenied.WithLabelValues(ReasonQuota).Inc()
		return Decision{Allowed: false, Reason: ReasonQuota, RenewAt: res.ExpireDate}, domain.ErrQuotaExceeded
	}
	return Decision{Allowed: true, RenewAt: res.ExpireDate}, nil
}
