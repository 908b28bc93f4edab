package twilio

import (
	"context"
	"encoding/xml"
	"sync"

	"chatgw/internal/providers"
)

type twimlMessage struct {
	Body  string   `xml:"Body,omitempty"`
	Media []string `xml:"Media,omitempty"`
}

type twimlResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []twimlMessage `xml:"Message"`
}

func renderTwiML(msgs []twimlMessage) []byte {
	b, _ := xml.Marshal(twimlResponse{Messages: msgs})
	return append([]byte(xml.Header), b...)
}

// EmptyTwiML acknowledges a webhook without sending anything.
func EmptyTwiML() []byte { return renderTwiML(nil) }

// Responder wraps the REST client for the duration of one webhook
// request. The final text part is held back and returned inline as
// TwiML; everything before it goes out over REST so ordering holds.
type Responder struct {
	Client *Client

	mu       sync.Mutex
	buffered *twimlMessage
}

func NewResponder(c *Client) *Responder { return &Responder{Client: c} }

func (r *Responder) Name() string { return r.Client.Name() }

func (r *Responder) Features() providers.Features { return r.Client.Features() }

func (r *Responder) flushLocked(ctx context.Context, to string) error {
	if r.buffered == nil {
		return nil
	}
	prev := *r.buffered
	r.buffered = nil
	if len(prev.Media) > 0 {
		mediaURL := prev.Media[0]
		return r.Client.SendMedia(ctx, to, mediaURL, prev.Body, false)
	}
	return r.Client.SendText(ctx, to, prev.Body)
}

func (r *Responder) SendText(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.flushLocked(ctx, to); err != nil {
		return err
	}
	r.buffered = &twimlMessage{Body: body}
	return nil
}

func (r *Responder) Reply(ctx context.Context, to, body, _ string) error {
	return r.SendText(ctx, to, body)
}

func (r *Responder) SendMedia(ctx context.Context, to, mediaURL, caption string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.flushLocked(ctx, to); err != nil {
		return err
	}
	r.buffered = &twimlMessage{Body: caption, Media: []string{mediaURL}}
	return nil
}

func (r *Responder) React(_ context.Context, _, _, _ string) error { return nil }

func (r *Responder) MarkRead(_ context.Context, _ string) error { return nil }

// TwiML renders whatever is still buffered. Call it exactly once, at the
// end of the webhook handler.
func (r *Responder) TwiML() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buffered == nil {
		return EmptyTwiML()
	}
	msg := *r.buffered
	r.buffered = nil
	return renderTwiML([]twimlMessage{msg})
}
