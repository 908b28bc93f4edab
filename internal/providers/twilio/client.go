// Package twilio adapts the Twilio WhatsApp channel. Twilio has no
// reactions, threading or read receipts; what it does have is the TwiML
// inline response, which Responder exploits to save one API call per
// conversation turn.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatgw/internal/observability"
	"chatgw/internal/providers"
)

const sendAttempts = 3

type Client struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	HTTP       *http.Client

	// StatusCallbackURL, when set, is attached to every outbound message
	// so delivery receipts flow back through the status webhook.
	StatusCallbackURL string
}

func NewClient(accountSID, authToken, fromNumber, baseURL string) *Client {
	return &Client{
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		BaseURL:    baseURL,
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Name() string { return "twilio" }

func (c *Client) Features() providers.Features {
	return providers.Features{InlineResponse: true}
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

func (c *Client) send(ctx context.Context, to, body, mediaURL string) (sendResponse, int, error) {
	form := url.Values{}
	form.Set("To", "whatsapp:"+to)
	form.Set("From", "whatsapp:"+c.FromNumber)
	if body != "" {
		form.Set("Body", body)
	}
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}
	if c.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.StatusCallbackURL)
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := baseURL + "/2010-04-01/Accounts/" + c.AccountSID + "/Messages.json"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return sendResponse{}, 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out sendResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return out, resp.StatusCode, errors.New(out.Message)
		}
		return out, resp.StatusCode, errors.New("twilio send failed")
	}
	return out, resp.StatusCode, nil
}

// sendWithRetry retries transient failures a few times before giving up.
func (c *Client) sendWithRetry(ctx context.Context, to, body, mediaURL string) error {
	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		_, status, err := c.send(ctx, to, body, mediaURL)
		if err == nil {
			observability.OutboundSends.WithLabelValues("twilio", "ok").Inc()
			return nil
		}
		lastErr = err
		observability.OutboundSends.WithLabelValues("twilio", "error").Inc()
		if !shouldRetry(err, status) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return lastErr
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.sendWithRetry(ctx, to, body, "")
}

func (c *Client) Reply(ctx context.Context, to, body, _ string) error {
	return c.SendText(ctx, to, body)
}

func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string, _ bool) error {
	return c.sendWithRetry(ctx, to, caption, mediaURL)
}

func (c *Client) React(_ context.Context, _, _, _ string) error { return nil }

func (c *Client) MarkRead(_ context.Context, _ string) error { return nil }

func shouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
	}
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	return httpStatus >= 500 && httpStatus <= 599
}

func backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt < 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
