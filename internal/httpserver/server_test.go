package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/providers/vonage"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/router"
	"chatgw/internal/store"
)

func TestMetaVerifyChallenge(t *testing.T) {
	h := &MetaWebhook{VerifyToken: "tok-123", Log: slog.Default()}
	s := New()
	h.Register(s.Mux)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/meta?hub.mode=subscribe&hub.verify_token=tok-123&hub.challenge=4242", nil)
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4242", rec.Body.String())
}

func TestMetaVerifyRejectsBadToken(t *testing.T) {
	h := &MetaWebhook{VerifyToken: "tok-123", Log: slog.Default()}
	s := New()
	h.Register(s.Mux)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=4242", nil)
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVoiceNoteServedOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.ogg"), []byte("opus"), 0o644))

	v := &VoiceNotes{Dir: dir, Log: slog.Default()}
	s := New()
	v.Register(s.Mux)

	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voice-note/note.ogg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "opus", rec.Body.String())
	assert.Equal(t, "audio/ogg", rec.Header().Get("Content-Type"))

	// The file is gone after the first fetch.
	rec = httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voice-note/note.ogg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoiceNoteRejectsTraversal(t *testing.T) {
	v := &VoiceNotes{Dir: t.TempDir(), Log: slog.Default()}
	s := New()
	v.Register(s.Mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/voice-note/..%2Fsecret", nil)
	s.Mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTwilioRejectsBadSignature(t *testing.T) {
	h := &TwilioWebhook{
		AuthToken:     "secret",
		PublicBaseURL: "https://gw.example.com",
		Log:           slog.Default(),
	}
	s := New()
	h.Register(s.Mux)

	form := "From=whatsapp%3A%2B15551234567&Body=hi"
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "not-a-signature")
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type captureEnqueuer struct {
	events []sqsqueue.StatusEvent
}

func (c *captureEnqueuer) Enqueue(_ context.Context, ev sqsqueue.StatusEvent) error {
	c.events = append(c.events, ev)
	return nil
}

func TestVonageStatusEnqueued(t *testing.T) {
	enq := &captureEnqueuer{}
	h := &VonageWebhook{Statuses: enq, Log: slog.Default()}
	s := New()
	h.Register(s.Mux)

	body := `{"message_uuid": "uuid-9", "status": "delivered", "to": "15551234567"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vonage/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, enq.events, 1)
	assert.Equal(t, "vonage", enq.events[0].Provider)
	assert.Equal(t, "uuid-9", enq.events[0].ProviderMsgID)
	assert.Equal(t, "delivered", enq.events[0].Status)
}

type stubUsers struct {
	user  store.User
	found bool
}

func (s stubUsers) UserByPhone(_ context.Context, _ string) (store.User, bool, error) {
	return s.user, s.found, nil
}

type pendingRecorder struct {
	inserts int
}

func (p *pendingRecorder) InsertPendingAudio(_ context.Context, _ store.PendingAudioTask) error {
	p.inserts++
	return nil
}

func (p *pendingRecorder) TakePendingAudio(_ context.Context, _, _, _ string, _ time.Duration, _ time.Time) (store.PendingAudioTask, bool, error) {
	return store.PendingAudioTask{}, false, nil
}

func TestVonageAudioFromUnknownSenderIsNotParked(t *testing.T) {
	var sends int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	pending := &pendingRecorder{}
	h := &VonageWebhook{
		Client:  vonage.NewClient("k", "s", "+15550000000", ts.URL),
		Router:  &router.Router{Users: stubUsers{found: false}, Log: slog.Default()},
		Pending: pending,
		TempDir: t.TempDir(),
		HTTP:    ts.Client(),
		Log:     slog.Default(),
	}
	s := New()
	h.Register(s.Mux)

	body := `{"message_uuid": "uuid-1", "from": "15551234567", "message_type": "audio",
		"audio": {"url": "` + ts.URL + `/media/1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vonage", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	// The signup nudge goes out and nothing is transcribed or parked.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sends)
	assert.Zero(t, pending.inserts)
}
