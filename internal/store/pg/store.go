package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatgw/internal/domain"
	"chatgw/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) UserByPhone(ctx context.Context, phone string) (store.User, bool, error) {
	var u store.User
	row := s.DB.QueryRow(ctx, `
		SELECT id, phone_no, first_name, last_name, account_type,
		       phone_verified, email_verified, voice_response, COALESCE(ai_voice,''),
		       created_at, updated_at
		FROM users WHERE phone_no=$1
	`, phone)

	err := row.Scan(&u.ID, &u.Phone, &u.FirstName, &u.LastName, &u.Plan,
		&u.PhoneVerified, &u.EmailVerified, &u.VoiceResponse, &u.AIVoice,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.User{}, false, nil
		}
		return store.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) ActiveEntitlement(ctx context.Context, userID string) (store.Entitlement, bool, error) {
	var e store.Entitlement
	row := s.DB.QueryRow(ctx, `
		SELECT id, user_id, tier, remaining, expire_date, status, updated_at
		FROM entitlements WHERE user_id=$1 AND status=$2
	`, userID, store.EntitlementActive)

	err := row.Scan(&e.ID, &e.UserID, &e.Tier, &e.Remaining, &e.ExpireDate, &e.Status, &e.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Entitlement{}, false, nil
		}
		return store.Entitlement{}, false, err
	}
	return e, true, nil
}

// ConsumeBasicQuota atomically renews a lapsed weekly window and, if any
// allowance remains, burns one unit. The renewal anchor is the stored
// expire_date: lapsed windows advance by whole periods so the weekday of
// the original signup is preserved.
func (s *Store) ConsumeBasicQuota(ctx context.Context, userID string, weeklyCap int, now time.Time) (store.QuotaResult, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return store.QuotaResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, remaining, expire_date FROM entitlements
		WHERE user_id=$1 AND tier=$2 AND status=$3
		FOR UPDATE
	`, userID, domain.PlanBasic, store.EntitlementActive)

	var id string
	var remaining int
	var expire time.Time
	if err := row.Scan(&id, &remaining, &expire); err != nil {
		if err.Error() == "no rows in result set" {
			return store.QuotaResult{}, fmt.Errorf("user %s has no basic entitlement: %w", userID, domain.ErrConfiguration)
		}
		return store.QuotaResult{}, err
	}

	if !expire.After(now) {
		expire = domain.NextRenewal(expire, now)
		remaining = weeklyCap
	}

	if remaining <= 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE entitlements SET expire_date=$2, updated_at=$3 WHERE id=$1
		`, id, expire, now); err != nil {
			return store.QuotaResult{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return store.QuotaResult{}, err
		}
		return store.QuotaResult{Allowed: false, Remaining: 0, ExpireDate: expire}, nil
	}

	remaining--
	if _, err := tx.Exec(ctx, `
		UPDATE entitlements SET remaining=$2, expire_date=$3, updated_at=$4 WHERE id=$1
	`, id, remaining, expire, now); err != nil {
		return store.QuotaResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.QuotaResult{}, err
	}
	return store.QuotaResult{Allowed: true, Remaining: remaining, ExpireDate: expire}, nil
}

// DowngradeToBasic lapses any paid entitlement, reinstates the basic one
// with a fresh window, and flips the user record, all in one transaction.
func (s *Store) DowngradeToBasic(ctx context.Context, userID string, weeklyCap int, now time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE entitlements SET status=$3, updated_at=$4
		WHERE user_id=$1 AND tier<>$2 AND status<>$3
	`, userID, domain.PlanBasic, store.EntitlementLapsed, now); err != nil {
		return err
	}

	row := tx.QueryRow(ctx, `
		SELECT id, expire_date FROM entitlements
		WHERE user_id=$1 AND tier=$2
		FOR UPDATE
	`, userID, domain.PlanBasic)
	var id string
	var expire time.Time
	if err := row.Scan(&id, &expire); err != nil {
		if err.Error() == "no rows in result set" {
			return fmt.Errorf("user %s has no basic entitlement: %w", userID, domain.ErrConfiguration)
		}
		return err
	}
	if !expire.After(now) {
		expire = domain.NextRenewal(expire, now)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE entitlements SET status=$2, remaining=$3, expire_date=$4, updated_at=$5 WHERE id=$1
	`, id, store.EntitlementActive, weeklyCap, expire, now); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET account_type=$2, updated_at=$3 WHERE id=$1
	`, userID, domain.PlanBasic, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertPendingAudio(ctx context.Context, in store.PendingAudioTask) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO pending_audio_tasks (id, provider, provider_msg_id, sender, transcript, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (provider, provider_msg_id) DO NOTHING
	`, in.ID, in.Provider, in.ProviderMsgID, in.Sender, in.Transcript, in.CreatedAt)
	return err
}

// TakePendingAudio claims and removes the task keyed by the provider's
// message id, falling back to the sender's most recent task when the
// retry arrives under a different id. Tasks older than maxAge are left to
// the reaper.
func (s *Store) TakePendingAudio(ctx context.Context, provider, providerMsgID, sender string, maxAge time.Duration, now time.Time) (store.PendingAudioTask, bool, error) {
	cutoff := now.Add(-maxAge)

	var t store.PendingAudioTask
	row := s.DB.QueryRow(ctx, `
		DELETE FROM pending_audio_tasks
		WHERE provider=$1 AND provider_msg_id=$2 AND created_at >= $3
		RETURNING id, provider, provider_msg_id, sender, transcript, created_at
	`, provider, providerMsgID, cutoff)
	err := row.Scan(&t.ID, &t.Provider, &t.ProviderMsgID, &t.Sender, &t.Transcript, &t.CreatedAt)
	if err == nil {
		return t, true, nil
	}
	if err.Error() != "no rows in result set" {
		return store.PendingAudioTask{}, false, err
	}

	row = s.DB.QueryRow(ctx, `
		DELETE FROM pending_audio_tasks
		WHERE id = (
			SELECT id FROM pending_audio_tasks
			WHERE provider=$1 AND sender=$2 AND created_at >= $3
			ORDER BY created_at DESC LIMIT 1
		)
		RETURNING id, provider, provider_msg_id, sender, transcript, created_at
	`, provider, sender, cutoff)
	err = row.Scan(&t.ID, &t.Provider, &t.ProviderMsgID, &t.Sender, &t.Transcript, &t.CreatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.PendingAudioTask{}, false, nil
		}
		return store.PendingAudioTask{}, false, err
	}
	return t, true, nil
}

// PurgeStalePendingAudio drops abandoned tasks whose retry never came.
func (s *Store) PurgeStalePendingAudio(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM pending_audio_tasks WHERE created_at < $1
	`, now.Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error {
	b, _ := json.Marshal(in.Payload)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_events (provider, provider_msg_id, vendor_status, error_code, payload_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.Provider, in.ProviderMsgID, in.VendorStatus, nullIfEmpty(in.ErrorCode), b, in.OccurredAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
