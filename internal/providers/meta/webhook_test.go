package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/domain"
)

const textPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "contacts": [{"wa_id": "15551234567", "profile": {"name": "Ada"}}],
    "messages": [{
      "from": "15551234567",
      "id": "wamid.abc",
      "timestamp": "1710504000",
      "type": "text",
      "text": {"body": "hello there"}
    }]
  }}]}]
}`

const imagePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "contacts": [{"wa_id": "15551234567", "profile": {"name": "Ada"}}],
    "messages": [{
      "from": "15551234567",
      "id": "wamid.img",
      "timestamp": "1710504000",
      "type": "image",
      "image": {"id": "media-42", "caption": "make it night time"}
    }]
  }}]}]
}`

const audioReplyPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "messages": [{
      "from": "15551234567",
      "id": "wamid.aud",
      "timestamp": "1710504000",
      "type": "audio",
      "audio": {"id": "media-77", "mime_type": "audio/ogg"},
      "context": {"id": "wamid.parent"}
    }]
  }}]}]
}`

const interactivePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "contacts": [{"wa_id": "15551234567", "profile": {"name": "Ada"}}],
    "messages": [{
      "from": "15551234567",
      "id": "wamid.btn",
      "timestamp": "1710504000",
      "type": "interactive",
      "interactive": {
        "type": "button_reply",
        "button_reply": {"id": "opt-joke", "title": "Tell me a joke"}
      }
    }]
  }}]}]
}`

const listReplyPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "messages": [{
      "from": "15551234567",
      "id": "wamid.list",
      "timestamp": "1710504000",
      "type": "interactive",
      "interactive": {
        "type": "list_reply",
        "list_reply": {"id": "opt-news", "title": "Today's news"}
      }
    }]
  }}]}]
}`

const statusPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"changes": [{"value": {
    "statuses": [{
      "id": "wamid.out",
      "status": "delivered",
      "recipient_id": "15551234567",
      "timestamp": "1710504100"
    }]
  }}]}]
}`

func TestParseTextMessage(t *testing.T) {
	msgs, err := ParsePayload([]byte(textPayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "meta", m.Provider)
	assert.Equal(t, domain.KindText, m.Kind)
	assert.Equal(t, "+15551234567", m.From)
	assert.Equal(t, "Ada", m.Name)
	assert.Equal(t, "hello there", m.Body)
	assert.Equal(t, "wamid.abc", m.ID)
	assert.False(t, m.IsReply())
}

func TestParseImageCarriesCaption(t *testing.T) {
	msgs, err := ParsePayload([]byte(imagePayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, domain.KindImage, msgs[0].Kind)
	assert.Equal(t, "media-42", msgs[0].MediaID)
	assert.Equal(t, "make it night time", msgs[0].Body)
}

func TestParseAudioReply(t *testing.T) {
	msgs, err := ParsePayload([]byte(audioReplyPayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, domain.KindAudio, msgs[0].Kind)
	assert.Equal(t, "media-77", msgs[0].MediaID)
	assert.True(t, msgs[0].IsReply())
	assert.Equal(t, "wamid.parent", msgs[0].ReplyToID)
}

func TestParseInteractiveCarriesReplyTitle(t *testing.T) {
	msgs, err := ParsePayload([]byte(interactivePayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, domain.KindInteractive, msgs[0].Kind)
	assert.Equal(t, "wamid.btn", msgs[0].ID)
	assert.Equal(t, "Tell me a joke", msgs[0].Body)

	msgs, err = ParsePayload([]byte(listReplyPayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Today's news", msgs[0].Body)
}

func TestParseStatusNotification(t *testing.T) {
	msgs, err := ParsePayload([]byte(statusPayload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, domain.KindStatus, msgs[0].Kind)
	assert.Equal(t, "delivered", msgs[0].Status)
	assert.Equal(t, "wamid.out", msgs[0].ID)
}

func TestParseIgnoresOtherObjects(t *testing.T) {
	msgs, err := ParsePayload([]byte(`{"object": "page", "entry": []}`))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
