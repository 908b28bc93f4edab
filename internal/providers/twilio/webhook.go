package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"chatgw/internal/domain"
	"chatgw/internal/util"
)

// VerifySignature checks the X-Twilio-Signature header: base64 HMAC-SHA1
// of the full request URL followed by the sorted form keys and values.
func VerifySignature(authToken, fullURL, provided string, form url.Values) bool {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

// ParseForm maps an inbound message webhook into the canonical shape.
func ParseForm(form url.Values) domain.Message {
	m := domain.Message{
		Provider:   "twilio",
		From:       util.NormalizePhone(form.Get("From")),
		Name:       form.Get("ProfileName"),
		Body:       form.Get("Body"),
		ID:         form.Get("MessageSid"),
		ReplyToID:  form.Get("OriginalRepliedMessageSid"),
		ReceivedAt: util.NowUTC(),
	}

	switch {
	case strings.HasPrefix(form.Get("MediaContentType0"), "audio/"):
		m.Kind = domain.KindAudio
		m.MediaURL = form.Get("MediaUrl0")
	case strings.HasPrefix(form.Get("MediaContentType0"), "image/"):
		m.Kind = domain.KindImage
		m.MediaURL = form.Get("MediaUrl0")
	default:
		m.Kind = domain.KindText
	}
	return m
}

// ParseStatusForm maps a status callback into a KindStatus message.
func ParseStatusForm(form url.Values) domain.Message {
	return domain.Message{
		Provider:   "twilio",
		From:       util.NormalizePhone(form.Get("To")),
		Kind:       domain.KindStatus,
		ID:         form.Get("MessageSid"),
		Status:     form.Get("MessageStatus"),
		ReceivedAt: util.NowUTC(),
	}
}
