package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"chatgw/internal/domain"
	"chatgw/internal/providers/twilio"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/router"
	"chatgw/internal/store"
	"chatgw/internal/util"
)

// pendingAudioMaxAge bounds how long a parked transcript waits for the
// provider's fallback delivery before it is considered abandoned.
const pendingAudioMaxAge = 10 * time.Minute

type PendingAudioStore interface {
	InsertPendingAudio(ctx context.Context, in store.PendingAudioTask) error
	TakePendingAudio(ctx context.Context, provider, providerMsgID, sender string, maxAge time.Duration, now time.Time) (store.PendingAudioTask, bool, error)
}

// TwilioWebhook handles the Twilio WhatsApp channel. Twilio's webhook
// deadline is too short for transcribe-plus-chat, so voice notes are
// transcribed, parked, and answered on the fallback URL delivery that a
// deliberate 500 provokes.
type TwilioWebhook struct {
	AuthToken     string
	PublicBaseURL string
	Client        *twilio.Client
	Router        *router.Router
	Pending       PendingAudioStore
	Statuses      StatusEnqueuer
	TempDir       string
	HTTP          *http.Client
	Log           *slog.Logger
}

func (h *TwilioWebhook) Register(m *mux.Router) {
	m.HandleFunc("/webhooks/twilio", h.handleInbound).Methods(http.MethodPost)
	m.HandleFunc("/webhooks/twilio/fallback", h.handleFallback).Methods(http.MethodPost)
	m.HandleFunc("/webhooks/twilio/status", h.handleStatus).Methods(http.MethodPost)
}

func (h *TwilioWebhook) verify(w http.ResponseWriter, r *http.Request, path string) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return false
	}
	fullURL := strings.TrimRight(h.PublicBaseURL, "/") + path
	sig := r.Header.Get("X-Twilio-Signature")
	if !twilio.VerifySignature(h.AuthToken, fullURL, sig, r.PostForm) {
		http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
		return false
	}
	return true
}

func writeTwiML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *TwilioWebhook) handleInbound(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r, "/webhooks/twilio") {
		return
	}

	msg := twilio.ParseForm(r.PostForm)
	if msg.Kind == domain.KindAudio {
		h.parkAudio(w, r.Context(), msg)
		return
	}

	if msg.MediaURL != "" {
		path, err := fetchMedia(r.Context(), h.HTTP, msg.MediaURL, h.TempDir,
			util.NewTaskID()+".png", h.Client.AccountSID, h.AuthToken)
		if err != nil {
			h.Log.Error("twilio media download failed", "err", err)
			resp := twilio.NewResponder(h.Client)
			_ = resp.SendText(r.Context(), msg.From, domain.ReplyMediaFail)
			writeTwiML(w, resp.TwiML())
			return
		}
		msg.MediaPath = path
		defer os.Remove(path)
	}

	resp := twilio.NewResponder(h.Client)
	if err := h.Router.Dispatch(r.Context(), msg, resp); err != nil {
		h.Log.Error("twilio dispatch failed", "err", err)
	}
	writeTwiML(w, resp.TwiML())
}

// parkAudio transcribes the voice note, stores the transcript keyed by
// message sid, and fails the request on purpose so Twilio re-delivers
// through the fallback URL with time to answer. The sender is gated
// before the download so unknown accounts never cost a transcription.
func (h *TwilioWebhook) parkAudio(w http.ResponseWriter, ctx context.Context, msg domain.Message) {
	gate := twilio.NewResponder(h.Client)
	ok, err := h.Router.PrecheckAudio(ctx, msg, gate)
	if !ok {
		if err != nil {
			h.Log.Error("twilio audio precheck failed", "err", err)
		}
		writeTwiML(w, gate.TwiML())
		return
	}

	path, err := fetchMedia(ctx, h.HTTP, msg.MediaURL, h.TempDir,
		util.NewTaskID()+".ogg", h.Client.AccountSID, h.AuthToken)
	if err != nil {
		h.Log.Error("twilio audio download failed", "err", err)
		resp := twilio.NewResponder(h.Client)
		_ = resp.SendText(ctx, msg.From, domain.ReplyMediaFail)
		writeTwiML(w, resp.TwiML())
		return
	}
	defer os.Remove(path)
	msg.MediaPath = path

	transcript, err := h.Router.TranscribeForFallback(ctx, msg)
	if err != nil {
		h.Log.Error("twilio transcription failed", "err", err)
		resp := twilio.NewResponder(h.Client)
		_ = resp.SendText(ctx, msg.From, domain.ReplyTranscribeFail)
		writeTwiML(w, resp.TwiML())
		return
	}

	err = h.Pending.InsertPendingAudio(ctx, store.PendingAudioTask{
		ID:            util.NewTaskID(),
		Provider:      "twilio",
		ProviderMsgID: msg.ID,
		Sender:        msg.From,
		Transcript:    transcript,
		CreatedAt:     util.NowUTC(),
	})
	if err != nil {
		h.Log.Error("park audio task failed", "err", err)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	http.Error(w, "deferred", http.StatusInternalServerError)
}

func (h *TwilioWebhook) handleFallback(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r, "/webhooks/twilio/fallback") {
		return
	}

	msg := twilio.ParseForm(r.PostForm)
	task, found, err := h.Pending.TakePendingAudio(r.Context(), "twilio", msg.ID, msg.From,
		pendingAudioMaxAge, util.NowUTC())
	if err != nil {
		h.Log.Error("pending audio lookup failed", "err", err)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	resp := twilio.NewResponder(h.Client)
	if !found {
		_ = resp.SendText(r.Context(), msg.From, domain.ReplyApology)
		writeTwiML(w, resp.TwiML())
		return
	}

	if err := h.Router.RespondFromTranscript(r.Context(), msg, task.Transcript, resp); err != nil {
		h.Log.Error("twilio deferred dispatch failed", "err", err)
	}
	writeTwiML(w, resp.TwiML())
}

func (h *TwilioWebhook) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r, "/webhooks/twilio/status") {
		return
	}

	msg := twilio.ParseStatusForm(r.PostForm)
	if h.Statuses != nil {
		err := h.Statuses.Enqueue(r.Context(), sqsqueue.StatusEvent{
			Provider:      "twilio",
			ProviderMsgID: msg.ID,
			Recipient:     msg.From,
			Status:        msg.Status,
			ErrorCode:     r.PostForm.Get("ErrorCode"),
			ReceivedAt:    msg.ReceivedAt,
		})
		if err != nil {
			h.Log.Error("status enqueue failed", "provider", "twilio", "err", err)
			http.Error(w, ErrDependency, http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
