package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResOKFrame(t *testing.T) {
	f := ResOK("req-1", map[string]any{"accepted": true})
	assert.Equal(t, "res", f.Type)
	assert.Equal(t, "req-1", f.ID)
	require.NotNil(t, f.OK)
	assert.True(t, *f.OK)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, true, payload["accepted"])
}

func TestResErrFrame(t *testing.T) {
	f := ResErr("req-2", "AUTH_FAILED", "invalid token")
	require.NotNil(t, f.OK)
	assert.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, "AUTH_FAILED", f.Error.Code)
}

func TestEventFrame(t *testing.T) {
	f := EventFrame("turn.message", 7, map[string]any{"x": 1})
	assert.Equal(t, "event", f.Type)
	assert.Equal(t, "turn.message", f.Event)
	assert.Equal(t, 7, f.Seq)
}

func TestComposing(t *testing.T) {
	assert.True(t, Composing("composing"))
	assert.True(t, Composing("recording"))
	assert.False(t, Composing("paused"))
	assert.False(t, Composing(""))
}

func TestPresenceParamsDecode(t *testing.T) {
	raw := []byte(`{
		"channel": "whatsapp",
		"chatId": "team@g.us",
		"participants": [
			{"id": "ann", "state": "composing"},
			{"id": "ben", "state": "paused"}
		]
	}`)
	var p PresenceParams
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "team@g.us", p.ChatID)
	require.Len(t, p.Participants, 2)
	assert.True(t, Composing(p.Participants[0].State))
	assert.False(t, Composing(p.Participants[1].State))
}
