package meta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chatgw/internal/domain"
	"chatgw/internal/util"
)

// payload mirrors the webhook shape of the Cloud API. Only the fields the
// gateway consumes are declared.
type payload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Audio struct {
						ID       string `json:"id"`
						MimeType string `json:"mime_type"`
					} `json:"audio"`
					Image struct {
						ID      string `json:"id"`
						Caption string `json:"caption"`
					} `json:"image"`
					Interactive struct {
						Type        string `json:"type"`
						ButtonReply struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
						ListReply struct {
							ID    string `json:"id"`
							Title string `json:"title"`
						} `json:"list_reply"`
					} `json:"interactive"`
					Context struct {
						ID string `json:"id"`
					} `json:"context"`
				} `json:"messages"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
					Timestamp   string `json:"timestamp"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParsePayload flattens a webhook delivery into canonical messages.
// Status notifications come out as KindStatus entries.
func ParsePayload(b []byte) ([]domain.Message, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if p.Object != "whatsapp_business_account" {
		return nil, nil
	}

	var out []domain.Message
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			v := ch.Value

			name := ""
			if len(v.Contacts) > 0 {
				name = v.Contacts[0].Profile.Name
			}

			for _, m := range v.Messages {
				msg := domain.Message{
					Provider:   "meta",
					From:       util.NormalizePhone(m.From),
					Name:       name,
					ID:         m.ID,
					ReplyToID:  m.Context.ID,
					ReceivedAt: parseEpoch(m.Timestamp),
				}
				switch m.Type {
				case "text":
					msg.Kind = domain.KindText
					msg.Body = m.Text.Body
				case "audio":
					msg.Kind = domain.KindAudio
					msg.MediaID = m.Audio.ID
				case "image":
					msg.Kind = domain.KindImage
					msg.MediaID = m.Image.ID
					msg.Body = m.Image.Caption
				case "interactive":
					msg.Kind = domain.KindInteractive
					if m.Interactive.Type == "list_reply" {
						msg.Body = m.Interactive.ListReply.Title
					} else {
						msg.Body = m.Interactive.ButtonReply.Title
					}
				default:
					// Stickers, locations and the rest are dropped here.
					continue
				}
				out = append(out, msg)
			}

			for _, st := range v.Statuses {
				out = append(out, domain.Message{
					Provider:   "meta",
					From:       util.NormalizePhone(st.RecipientID),
					Kind:       domain.KindStatus,
					ID:         st.ID,
					Status:     st.Status,
					ReceivedAt: parseEpoch(st.Timestamp),
				})
			}
		}
	}
	return out, nil
}

func parseEpoch(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return util.NowUTC()
	}
	return time.Unix(sec, 0).UTC()
}
