// Package meta speaks the WhatsApp Cloud API (Graph). It is the richest
// channel: threading, reactions and read receipts are all available.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"chatgw/internal/observability"
	"chatgw/internal/providers"
)

const DefaultBaseURL = "https://graph.facebook.com/v17.0"

type Client struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	HTTP          *http.Client

	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
}

func NewClient(token, phoneNumberID, baseURL string, rps float64, burst int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Token:         token,
		PhoneNumberID: phoneNumberID,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTP:          &http.Client{Timeout: 15 * time.Second},
		Limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "meta-graph",
			Timeout: 30 * time.Second,
		}),
	}
}

func (c *Client) Name() string { return "meta" }

func (c *Client) Features() providers.Features {
	return providers.Features{Reactions: true, Threading: true, ReadReceipts: true}
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// post ships one payload to the messages endpoint. The local limiter
// smooths bursts and the breaker fails fast when Graph is down.
func (c *Client) post(ctx context.Context, payload map[string]any) error {
	if c.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.OutboundSends.WithLabelValues("meta", "rate_limited_local").Inc()
			return err
		}
	}

	call := func() (any, error) {
		b, _ := json.Marshal(payload)
		endpoint := c.BaseURL + "/" + c.PhoneNumberID + "/messages"
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var ge graphError
			_ = json.Unmarshal(body, &ge)
			if ge.Error.Message != "" {
				return nil, fmt.Errorf("graph %d: %s", resp.StatusCode, ge.Error.Message)
			}
			return nil, fmt.Errorf("graph %d", resp.StatusCode)
		}
		return nil, nil
	}

	var err error
	if c.Breaker != nil {
		_, err = c.Breaker.Execute(call)
	} else {
		_, err = call()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.OutboundSends.WithLabelValues("meta", "cb_open").Inc()
		return err
	}
	if err != nil {
		observability.OutboundSends.WithLabelValues("meta", "error").Inc()
		return err
	}
	observability.OutboundSends.WithLabelValues("meta", "ok").Inc()
	return nil
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": body},
	})
}

func (c *Client) Reply(ctx context.Context, to, body, replyToID string) error {
	if replyToID == "" {
		return c.SendText(ctx, to, body)
	}
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"context":           map[string]any{"message_id": replyToID},
		"text":              map[string]any{"preview_url": false, "body": body},
	})
}

func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string, voiceNote bool) error {
	if voiceNote {
		return c.post(ctx, map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                to,
			"type":              "audio",
			"audio":             map[string]any{"link": mediaURL},
		})
	}
	img := map[string]any{"link": mediaURL}
	if caption != "" {
		img["caption"] = caption
	}
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "image",
		"image":             img,
	})
}

func (c *Client) React(ctx context.Context, to, msgID, emoji string) error {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "reaction",
		"reaction":          map[string]any{"message_id": msgID, "emoji": emoji},
	})
}

func (c *Client) MarkRead(ctx context.Context, msgID string) error {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        msgID,
	})
}

// MediaURL resolves a media id to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+mediaID, nil)
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media lookup %d", resp.StatusCode)
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// DownloadMedia fetches media into destDir and returns the file path.
// Graph media URLs require the same bearer token as the API.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL, destDir, name string) (string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download %d", resp.StatusCode)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
