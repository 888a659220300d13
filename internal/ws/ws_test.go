package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.ClientCount())

	// no subscribers is not an error
	hub.Broadcast("links:update", []string{"a", "b"})
}

func TestEventFrameShape(t *testing.T) {
	event := Event{
		Type:    "env:update",
		Payload: map[string]string{"key": "API_TOKEN"},
		TS:      time.Now().UnixMilli(),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "env:update", decoded["type"])
	assert.NotNil(t, decoded["payload"])
	assert.InDelta(t, float64(event.TS), decoded["ts"].(float64), 1)
}
