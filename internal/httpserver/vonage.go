package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"chatgw/internal/domain"
	"chatgw/internal/providers/vonage"
	sqsqueue "chatgw/internal/queue/sqs"
	"chatgw/internal/router"
	"chatgw/internal/store"
	"chatgw/internal/util"
)

// VonageWebhook handles the Vonage Messages API channel. Vonage has no
// fallback URL; failing the first delivery of a voice note makes Vonage
// retry the same webhook, and the retry finds the parked transcript.
type VonageWebhook struct {
	Client   *vonage.Client
	Router   *router.Router
	Pending  PendingAudioStore
	Statuses StatusEnqueuer
	TempDir  string
	HTTP     *http.Client
	Log      *slog.Logger
}

func (h *VonageWebhook) Register(m *mux.Router) {
	m.HandleFunc("/webhooks/vonage", h.handleInbound).Methods(http.MethodPost)
	m.HandleFunc("/webhooks/vonage/status", h.handleStatus).Methods(http.MethodPost)
}

func (h *VonageWebhook) handleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	msg, err := vonage.ParsePayload(body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if msg.Kind == domain.KindAudio {
		h.handleAudio(w, r, msg)
		return
	}

	if msg.MediaURL != "" {
		path, err := fetchMedia(r.Context(), h.HTTP, msg.MediaURL, h.TempDir,
			util.NewTaskID()+".png", h.Client.APIKey, h.Client.APISecret)
		if err != nil {
			h.Log.Error("vonage media download failed", "err", err)
			_ = h.Client.SendText(r.Context(), msg.From, domain.ReplyMediaFail)
			w.WriteHeader(http.StatusOK)
			return
		}
		msg.MediaPath = path
		defer os.Remove(path)
	}

	if err := h.Router.Dispatch(r.Context(), msg, h.Client); err != nil {
		h.Log.Error("vonage dispatch failed", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleAudio is the two-delivery dance: the first attempt transcribes
// and parks, then answers the retry from the parked transcript.
func (h *VonageWebhook) handleAudio(w http.ResponseWriter, r *http.Request, msg domain.Message) {
	ctx := r.Context()

	task, found, err := h.Pending.TakePendingAudio(ctx, "vonage", msg.ID, msg.From,
		pendingAudioMaxAge, util.NowUTC())
	if err != nil {
		h.Log.Error("pending audio lookup failed", "err", err)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	if found {
		if err := h.Router.RespondFromTranscript(ctx, msg, task.Transcript, h.Client); err != nil {
			h.Log.Error("vonage deferred dispatch failed", "err", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	// First delivery of this note. Gate the sender before the download
	// so unknown accounts never cost a transcription.
	ok, err := h.Router.PrecheckAudio(ctx, msg, h.Client)
	if !ok {
		if err != nil {
			h.Log.Error("vonage audio precheck failed", "err", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	path, err := fetchMedia(ctx, h.HTTP, msg.MediaURL, h.TempDir,
		util.NewTaskID()+".ogg", h.Client.APIKey, h.Client.APISecret)
	if err != nil {
		h.Log.Error("vonage audio download failed", "err", err)
		_ = h.Client.SendText(ctx, msg.From, domain.ReplyMediaFail)
		w.WriteHeader(http.StatusOK)
		return
	}
	defer os.Remove(path)
	msg.MediaPath = path

	transcript, err := h.Router.TranscribeForFallback(ctx, msg)
	if err != nil {
		h.Log.Error("vonage transcription failed", "err", err)
		_ = h.Client.SendText(ctx, msg.From, domain.ReplyTranscribeFail)
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.Pending.InsertPendingAudio(ctx, store.PendingAudioTask{
		ID:            util.NewTaskID(),
		Provider:      "vonage",
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

	// Deliberate failure: Vonage redelivers, and the retry answers.
	http.Error(w, "deferred", http.StatusInternalServerError)
}

func (h *VonageWebhook) handleStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	msg, err := vonage.ParseStatusPayload(body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if h.Statuses != nil {
		err := h.Statuses.Enqueue(r.Context(), sqsqueue.StatusEvent{
			Provider:      "vonage",
			ProviderMsgID: msg.ID,
			Recipient:     msg.From,
			Status:        msg.Status,
			ReceivedAt:    msg.ReceivedAt,
		})
		if err != nil {
			h.Log.Error("status enqueue failed", "provider", "vonage", "err", err)
			http.Error(w, ErrDependency, http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
