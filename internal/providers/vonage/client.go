// Package vonage adapts the Vonage Messages API WhatsApp channel. It is
// the plainest channel: no reactions, no threading, no inline responses.
// Deferred audio handling leans on Vonage's webhook retry behavior
// instead of a dedicated fallback URL.
package vonage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatgw/internal/domain"
	"chatgw/internal/observability"
	"chatgw/internal/providers"
	"chatgw/internal/util"
)

const DefaultBaseURL = "https://api.nexmo.com"

type Client struct {
	APIKey     string
	APISecret  string
	FromNumber string
	BaseURL    string
	HTTP       *http.Client
}

func NewClient(apiKey, apiSecret, fromNumber, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		FromNumber: fromNumber,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Name() string { return "vonage" }

func (c *Client) Features() providers.Features { return providers.Features{} }

func (c *Client) post(ctx context.Context, payload map[string]any) error {
	payload["channel"] = "whatsapp"
	payload["from"] = strings.TrimPrefix(c.FromNumber, "+")

	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.APIKey, c.APISecret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		observability.OutboundSends.WithLabelValues("vonage", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		observability.OutboundSends.WithLabelValues("vonage", "error").Inc()
		return fmt.Errorf("vonage %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	observability.OutboundSends.WithLabelValues("vonage", "ok").Inc()
	return nil
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, map[string]any{
		"to":           strings.TrimPrefix(to, "+"),
		"message_type": "text",
		"text":         body,
	})
}

func (c *Client) Reply(ctx context.Context, to, body, _ string) error {
	return c.SendText(ctx, to, body)
}

func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string, voiceNote bool) error {
	if voiceNote {
		return c.post(ctx, map[string]any{
			"to":           strings.TrimPrefix(to, "+"),
			"message_type": "audio",
			"audio":        map[string]any{"url": mediaURL},
		})
	}
	img := map[string]any{"url": mediaURL}
	if caption != "" {
		img["caption"] = caption
	}
	return c.post(ctx, map[string]any{
		"to":           strings.TrimPrefix(to, "+"),
		"message_type": "image",
		"image":        img,
	})
}

func (c *Client) React(_ context.Context, _, _, _ string) error { return nil }

func (c *Client) MarkRead(_ context.Context, _ string) error { return nil }

// inboundPayload is the Messages API inbound webhook body.
type inboundPayload struct {
	From    string `json:"from"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	MessageUUID string `json:"message_uuid"`
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Audio       struct {
		URL string `json:"url"`
	} `json:"audio"`
	Image struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	} `json:"image"`
	Context struct {
		MessageUUID string `json:"message_uuid"`
	} `json:"context"`
}

// ParsePayload maps an inbound webhook body to a canonical message.
func ParsePayload(b []byte) (domain.Message, error) {
	var p inboundPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Message{}, fmt.Errorf("decode webhook: %w", err)
	}

	m := domain.Message{
		Provider:   "vonage",
		From:       util.NormalizePhone(p.From),
		Name:       p.Profile.Name,
		ID:         p.MessageUUID,
		ReplyToID:  p.Context.MessageUUID,
		ReceivedAt: util.NowUTC(),
	}
	switch p.MessageType {
	case "text":
		m.Kind = domain.KindText
		m.Body = p.Text
	case "audio":
		m.Kind = domain.KindAudio
		m.MediaURL = p.Audio.URL
	case "image":
		m.Kind = domain.KindImage
		m.MediaURL = p.Image.URL
		m.Body = p.Image.Caption
	default:
		m.Kind = domain.KindText
		m.Body = p.Text
	}
	return m, nil
}

// statusPayload is the Messages API status webhook body.
type statusPayload struct {
	MessageUUID string `json:"message_uuid"`
	Status      string `json:"status"`
	To          string `json:"to"`
	Error       struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	} `json:"error"`
}

func ParseStatusPayload(b []byte) (domain.Message, error) {
	var p statusPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Message{}, fmt.Errorf("decode status webhook: %w", err)
	}
	return domain.Message{
		Provider:   "vonage",
		From:       util.NormalizePhone(p.To),
		Kind:       domain.KindStatus,
		ID:         p.MessageUUID,
		Status:     p.Status,
		ReceivedAt: util.NowUTC(),
	}, nil
}
