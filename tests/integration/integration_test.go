//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/domain"
	"chatgw/internal/store"
	"chatgw/internal/store/pg"
	"chatgw/internal/util"
)

func TestBasicWeeklyQuotaRenewsOnAnchor(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	userID := insertUser(t, db, "+15551230001", domain.PlanBasic)
	anchor := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) // a Monday
	insertEntitlement(t, db, userID, domain.PlanBasic, 2, anchor)

	now := anchor.Add(-time.Hour)

	// Burn the remaining allowance.
	for i := 0; i < 2; i++ {
		res, err := st.ConsumeBasicQuota(ctx, userID, 10, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	// Exhausted within the same window.
	res, err := st.ConsumeBasicQuota(ctx, userID, 10, now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, anchor, res.ExpireDate.UTC())

	// Three weeks and change later the window renews, counter refilled,
	// and the anchor stays on a Monday 09:00.
	later := anchor.Add(3*domain.RenewalPeriod + 5*time.Hour)
	res, err = st.ConsumeBasicQuota(ctx, userID, 10, later)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
	assert.Equal(t, anchor.Add(4*domain.RenewalPeriod), res.ExpireDate.UTC())
}

func TestDowngradeToBasicFlipsEverything(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	userID := insertUser(t, db, "+15551230002", domain.PlanPremium)
	past := time.Now().UTC().Add(-48 * time.Hour)
	insertEntitlement(t, db, userID, domain.PlanBasic, 0, past)
	insertEntitlementWithStatus(t, db, userID, domain.PlanPremium, 0, past, store.EntitlementActive)

	now := time.Now().UTC()
	require.NoError(t, st.DowngradeToBasic(ctx, userID, 10, now))

	ent, found, err := st.ActiveEntitlement(ctx, userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.PlanBasic, ent.Tier)
	assert.Equal(t, 10, ent.Remaining)
	assert.True(t, ent.ExpireDate.After(now))

	u, found, err := st.UserByPhone(ctx, "+15551230002")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.PlanBasic, u.Plan)
}

func TestPendingAudioTakeByIDThenBySender(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupTestDB(t)
	defer cleanup()

	st := pg.New(db)
	now := time.Now().UTC()

	require.NoError(t, st.InsertPendingAudio(ctx, store.PendingAudioTask{
		ID: util.NewTaskID(), Provider: "twilio", ProviderMsgID: "SM1",
		Sender: "+15551230003", Transcript: "first", CreatedAt: now,
	}))

	task, found, err := st.TakePendingAudio(ctx, "twilio", "SM1", "+15551230003", 10*time.Minute, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", task.Transcript)

	// Claimed exactly once.
	_, found, err = st.TakePendingAudio(ctx, "twilio", "SM1", "+15551230003", 10*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, found)

	// A retry under a different id still finds the sender's task.
	require.NoError(t, st.InsertPendingAudio(ctx, store.PendingAudioTask{
		ID: util.NewTaskID(), Provider: "vonage", ProviderMsgID: "uuid-1",
		Sender: "+15551230003", Transcript: "second", CreatedAt: now,
	}))
	task, found, err = st.TakePendingAudio(ctx, "vonage", "uuid-other", "+15551230003", 10*time.Minute, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", task.Transcript)

	// Stale tasks are invisible.
	require.NoError(t, st.InsertPendingAudio(ctx, store.PendingAudioTask{
		ID: util.NewTaskID(), Provider: "vonage", ProviderMsgID: "uuid-2",
		Sender: "+15551230003", Transcript: "stale", CreatedAt: now.Add(-time.Hour),
	}))
	_, found, err = st.TakePendingAudio(ctx, "vonage", "uuid-2", "+15551230003", 10*time.Minute, now)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := st.PurgeStalePendingAudio(ctx, 10*time.Minute, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func insertUser(t *testing.T, db *pgxpool.Pool, phone string, plan domain.PlanTier) string {
	t.Helper()
	id := util.NewTaskID()
	_, err := db.Exec(context.Background(), `
		INSERT INTO users (id, phone_no, account_type, phone_verified, email_verified)
		VALUES ($1, $2, $3, TRUE, TRUE)
	`, id, phone, plan)
	require.NoError(t, err)
	return id
}

func insertEntitlement(t *testing.T, db *pgxpool.Pool, userID string, tier domain.PlanTier, remaining int, expire time.Time) {
	t.Helper()
	insertEntitlementWithStatus(t, db, userID, tier, remaining, expire, store.EntitlementActive)
}

func insertEntitlementWithStatus(t *testing.T, db *pgxpool.Pool, userID string, tier domain.PlanTier, remaining int, expire time.Time, status string) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO entitlements (id, user_id, tier, remaining, expire_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, util.NewTaskID(), userID, tier, remaining, expire, status)
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}

	if _, err := admin.Exec(context.Background(), "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	dbDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		admin.Close()
		t.Fatalf("build dsn: %v", err)
	}

	db, err := pgxpool.New(context.Background(), dbDSN)
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}

	sqlPath := filepath.Join("..", "..", "migrations", "001_init.sql")
	sqlBytes, err := os.ReadFile(sqlPath)
	if err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("read migrations: %v", err)
	}
	if _, err := db.Exec(context.Background(), string(sqlBytes)); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}
	return db, cleanup
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
