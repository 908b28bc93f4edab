// Package store declares the records the persistence layer exchanges
// with the rest of the gateway.
package store

import (
	"time"

	"chatgw/internal/domain"
)

type User struct {
	ID            string
	Phone         string
	FirstName     string
	LastName      string
	Plan          domain.PlanTier
	PhoneVerified bool
	EmailVerified bool
	VoiceResponse bool
	AIVoice       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Entitlement struct {
	ID         string
	UserID     string
	Tier       domain.PlanTier
	Remaining  int
	ExpireDate time.Time
	Status     string
	UpdatedAt  time.Time
}

// Entitlement status values.
const (
	EntitlementActive = "active"
	EntitlementLapsed = "lapsed"
)

// QuotaResult reports the outcome of a metered-tier consume attempt.
type QuotaResult struct {
	Allowed    bool
	Remaining  int
	ExpireDate time.Time
}

// PendingAudioTask is a voice note transcribed on the first webhook
// attempt, parked for the provider's follow-up delivery.
type PendingAudioTask struct {
	ID            string
	Provider      string
	ProviderMsgID string
	Sender        string
	Transcript    string
	CreatedAt     time.Time
}

// DeliveryEvent is a provider status callback persisted for audit.
type DeliveryEvent struct {
	Provider      string
	ProviderMsgID string
	VendorStatus  string
	ErrorCode     string
	Payload       map[string]any
	OccurredAt    time.Time
}
