package domain

import "time"

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindAudio       MessageKind = "audio"
	KindImage       MessageKind = "image"
	KindInteractive MessageKind = "interactive"
	KindStatus      MessageKind = "status"
)

// Message is the canonical, provider-agnostic inbound record. A provider
// adapter builds one per webhook delivery; it is never persisted.
type Message struct {
	Provider string
	From     string // E.164 with leading "+"
	Name     string
	Kind     MessageKind
	Body     string // text body or media caption
	MediaID  string // provider media identifier when the URL needs a lookup
	MediaURL string
	// MediaPath is set once the handler has downloaded the media locally.
	MediaPath  string
	ID         string
	ReplyToID  string
	Status     string // only for KindStatus
	ReceivedAt time.Time
}

func (m Message) IsReply() bool { return m.ReplyToID != "" }

type Capability string

const (
	CapText  Capability = "text"
	CapImage Capability = "image"
	CapAudio Capability = "audio"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation window.
type Turn struct {
	Role    string
	Content string
}
