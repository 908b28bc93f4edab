// Package providers defines the outbound surface every WhatsApp channel
// implements. Capability differences between channels are declared, not
// probed: callers consult Features before asking for reactions, read
// receipts or threading.
package providers

import "context"

// Features flags what a channel can do beyond plain sends. Everything
// defaults to false so a new channel starts at the lowest common
// denominator.
type Features struct {
	Reactions      bool
	Threading      bool
	ReadReceipts   bool
	InlineResponse bool
}

type Sender interface {
	Name() string
	Features() Features

	// SendText delivers one already-size-checked part.
	SendText(ctx context.Context, to, body string) error

	// Reply threads a text onto an earlier message where the channel
	// supports it; otherwise implementations fall back to SendText.
	Reply(ctx context.Context, to, body, replyToID string) error

	// SendMedia delivers an image or audio file by public URL. An empty
	// caption is allowed.
	SendMedia(ctx context.Context, to, mediaURL, caption string, voiceNote bool) error

	// React attaches an emoji to a message. No-op when unsupported.
	React(ctx context.Context, to, msgID, emoji string) error

	// MarkRead acknowledges an inbound message. No-op when unsupported.
	MarkRead(ctx context.Context, msgID string) error
}
