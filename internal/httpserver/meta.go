package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"chatgw/internal/domain"
	"chatgw/internal/providers/meta"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/router"
	"chatgw/internal/util"
)

// StatusEnqueuer hands a delivery status event to the async pipeline.
// Nil disables status persistence.
type StatusEnqueuer interface {
	Enqueue(ctx context.Context, ev sqsqueue.StatusEvent) error
}

// MetaWebhook handles the Cloud API webhook. Meta gives webhooks enough
// time that the whole pipeline, audio included, runs inline.
type MetaWebhook struct {
	VerifyToken string
	Client      *meta.Client
	Router      *router.Router
	Statuses    StatusEnqueuer
	TempDir     string
	Log         *slog.Logger
}

func (h *MetaWebhook) Register(m *mux.Router) {
	m.HandleFunc("/webhooks/meta", h.handleVerify).Methods(http.MethodGet)
	m.HandleFunc("/webhooks/meta", h.handlePost).Methods(http.MethodPost)
}

// handleVerify answers the subscription challenge Meta sends when the
// webhook URL is registered.
func (h *MetaWebhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	http.Error(w, ErrVerifyFailed, http.StatusForbidden)
}

func (h *MetaWebhook) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	msgs, err := meta.ParsePayload(body)
	if err != nil {
		h.Log.Warn("meta webhook parse failed", "err", err)
		// Still 200: Meta retries on errors and the payload will not
		// get better.
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, msg := range msgs {
		if msg.Kind == domain.KindStatus {
			h.forwardStatus(r.Context(), msg)
			continue
		}
		h.handleMessage(r.Context(), msg)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *MetaWebhook) forwardStatus(ctx context.Context, msg domain.Message) {
	if h.Statuses == nil {
		return
	}
	err := h.Statuses.Enqueue(ctx, sqsqueue.StatusEvent{
		Provider:      msg.Provider,
		ProviderMsgID: msg.ID,
		Recipient:     msg.From,
		Status:        msg.Status,
		ReceivedAt:    msg.ReceivedAt,
	})
	if err != nil {
		h.Log.Error("status enqueue failed", "provider", "meta", "err", err)
	}
}

func (h *MetaWebhook) handleMessage(ctx context.Context, msg domain.Message) {
	if msg.MediaID != "" {
		path, err := h.downloadByID(ctx, msg)
		if err != nil {
			h.Log.Error("meta media download failed", "media_id", msg.MediaID, "err", err)
			_ = h.Client.SendText(ctx, msg.From, domain.ReplyMediaFail)
			return
		}
		msg.MediaPath = path
		defer os.Remove(path)
	}

	if err := h.Router.Dispatch(ctx, msg, h.Client); err != nil {
		h.Log.Error("meta dispatch failed", "err", err)
	}
}

func (h *MetaWebhook) downloadByID(ctx context.Context, msg domain.Message) (string, error) {
	url, err := h.Client.MediaURL(ctx, msg.MediaID)
	if err != nil {
		return "", err
	}
	ext := ".png"
	if msg.Kind == domain.KindAudio {
		ext = ".ogg"
	}
	return h.Client.DownloadMedia(ctx, url, h.TempDir, util.NewTaskID()+ext)
}
