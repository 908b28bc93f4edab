package domain

import "time"

type PlanTier string

const (
	PlanBasic    PlanTier = "basic"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

// RenewalPeriod is the billing cadence shared by all tiers.
const RenewalPeriod = 7 * 24 * time.Hour

// Allows reports whether the tier grants the capability at all. The basic
// tier grants everything but meters each request against its weekly
// counter; that check lives in the entitlement engine, not here.
func (t PlanTier) Allows(c Capability) bool {
	switch t {
	case PlanBasic:
		return true
	case PlanStandard:
		return c == CapText || c == CapImage
	case PlanPremium:
		return true
	}
	return false
}

// NextRenewal advances expire in whole renewal periods from its original
// anchor until it lands in the future. An expiry already in the future is
// returned unchanged, so repeated renewal is idempotent and the billing
// anchor never drifts.
func NextRenewal(expire, now time.Time) time.Time {
	for !expire.After(now) {
		expire = expire.Add(RenewalPeriod)
	}
	return expire
}
