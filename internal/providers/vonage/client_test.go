package vonage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgw/internal/domain"
)

func TestSendTextPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient("key", "secret", "+15550009999", srv.URL)
	require.NoError(t, c.SendText(context.Background(), "+15551234567", "hello"))

	assert.Equal(t, "whatsapp", got["channel"])
	assert.Equal(t, "15550009999", got["from"])
	assert.Equal(t, "15551234567", got["to"])
	assert.Equal(t, "text", got["message_type"])
	assert.Equal(t, "hello", got["text"])
}

func TestParseAudioPayload(t *testing.T) {
	body := `{
	  "from": "15551234567",
	  "profile": {"name": "Ada"},
	  "message_uuid": "uuid-1",
	  "message_type": "audio",
	  "audio": {"url": "https://api.nexmo.com/media/abc"}
	}`

	m, err := ParsePayload([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "vonage", m.Provider)
	assert.Equal(t, domain.KindAudio, m.Kind)
	assert.Equal(t, "+15551234567", m.From)
	assert.Equal(t, "uuid-1", m.ID)
	assert.Equal(t, "https://api.nexmo.com/media/abc", m.MediaURL)
}

func TestParseStatusPayload(t *testing.T) {
	body := `{"message_uuid": "uuid-2", "status": "delivered", "to": "15551234567"}`

	m, err := ParseStatusPayload([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, domain.KindStatus, m.Kind)
	assert.Equal(t, "delivered", m.Status)
	assert.Equal(t, "uuid-2", m.ID)
}
