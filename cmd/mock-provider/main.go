// mock-provider is a local stand-in for the WhatsApp Cloud API: it
// accepts message sends, hosts a fake media object, and pushes delivery
// status webhooks back at the gateway so the whole loop can run without
// Meta credentials.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port           string `envconfig:"PORT" default:"9090"`
	WebhookURL     string `envconfig:"MOCK_WEBHOOK_URL" default:""`
	WebhookDelayMs int    `envconfig:"MOCK_WEBHOOK_DELAY_MS" default:"300"`
	FinalStatus    string `envconfig:"MOCK_FINAL_STATUS" default:"delivered"`
}

type server struct {
	cfg    config
	idx    uint64
	client *http.Client
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock provider config load failed", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s := &server{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}

	r := mux.NewRouter()
	r.HandleFunc("/{phoneNumberID}/messages", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/{mediaID}", s.handleMediaLookup).Methods(http.MethodGet)
	r.HandleFunc("/media/{mediaID}/content", s.handleMediaContent).Methods(http.MethodGet)

	slog.Info("mock provider listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		To   string `json:"to"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":{"message":"invalid json","code":100}}`, http.StatusBadRequest)
		return
	}

	id := fmt.Sprintf("wamid.mock%06d", atomic.AddUint64(&s.idx, 1))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"messaging_product": "whatsapp",
		"messages":          []map[string]string{{"id": id}},
	})

	if payload.To != "" {
		go s.pushStatuses(id, payload.To)
	}
}

// pushStatuses replays the sent-then-final status sequence the real API
// delivers after a send.
func (s *server) pushStatuses(msgID, recipient string) {
	if s.cfg.WebhookURL == "" {
		return
	}
	delay := time.Duration(s.cfg.WebhookDelayMs) * time.Millisecond
	for _, status := range []string{"sent", s.cfg.FinalStatus} {
		time.Sleep(delay)
		body, _ := json.Marshal(map[string]any{
			"object": "whatsapp_business_account",
			"entry": []map[string]any{{
				"changes": []map[string]any{{
					"value": map[string]any{
						"statuses": []map[string]any{{
							"id":           msgID,
							"status":       status,
							"recipient_id": recipient,
							"timestamp":    strconv.FormatInt(time.Now().Unix(), 10),
						}},
					},
				}},
			}},
		})
		resp, err := s.client.Post(s.cfg.WebhookURL, "application/json", bytes.NewReader(body))
		if err != nil {
			slog.Error("mock status webhook failed", "err", err)
			return
		}
		resp.Body.Close()
	}
}

func (s *server) handleMediaLookup(w http.ResponseWriter, r *http.Request) {
	mediaID := mux.Vars(r)["mediaID"]
	base := "http://" + r.Host
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"url": base + "/media/" + mediaID + "/content",
		"id":  mediaID,
	})
}

func (s *server) handleMediaContent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte("mock-media-bytes"))
}
