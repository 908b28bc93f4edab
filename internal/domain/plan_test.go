package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextRenewalPreservesAnchor(t *testing.T) {
	anchor := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	// Three weeks and a bit later: expiry must advance in whole weeks from
	// the anchor, not from "now".
	now := anchor.Add(3*RenewalPeriod + 5*time.Hour)
	got := NextRenewal(anchor, now)
	require.Equal(t, anchor.Add(4*RenewalPeriod), got)
	require.Equal(t, anchor.Weekday(), got.Weekday())
}

func TestNextRenewalIdempotentWhenCurrent(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	expire := now.Add(48 * time.Hour)

	require.Equal(t, expire, NextRenewal(expire, now))
	// Renewing again must not push the date further out.
	require.Equal(t, expire, NextRenewal(NextRenewal(expire, now), now))
}

func TestTierCapabilities(t *testing.T) {
	cases := []struct {
		tier PlanTier
		cap  Capability
		want bool
	}{
		{PlanBasic, CapText, true},
		{PlanBasic, CapImage, true},
		{PlanBasic, CapAudio, true},
		{PlanStandard, CapImage, true},
		{PlanStandard, CapAudio, false},
		{PlanPremium, CapAudio, true},
		{PlanTier("unknown"), CapText, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.tier.Allows(tc.cap), "%s/%s", tc.tier, tc.cap)
	}
}
