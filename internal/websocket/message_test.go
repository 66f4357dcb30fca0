package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleTimeUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"unix milliseconds", "1756425600000", time.UnixMilli(1756425600000), false},
		{"rfc3339", `"2026-08-29T10:00:00Z"`, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), false},
		{"garbage string", `"not-a-time"`, time.Time{}, true},
		{"wrong type", `{"a":1}`, time.Time{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ft FlexibleTime
			err := json.Unmarshal([]byte(tc.input), &ft)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, ft.Time.Equal(tc.want))
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage(MessageTypeGatedChanged, ChangePayload{
		Table:    "gated_content",
		CoupleID: "couple-1",
		AuthorID: "supporter-1",
		Date:     "2026-08-29",
	})

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, MessageTypeGatedChanged, decoded.Type)

	var payload ChangePayload
	require.NoError(t, decoded.ParsePayload(&payload))
	assert.Equal(t, "couple-1", payload.CoupleID)
	assert.Equal(t, "2026-08-29", payload.Date)
}

func TestChangePayloadCarriesNoContent(t *testing.T) {
	// The wire format is coordinates only; a gated message must never ride
	// along on a change notification.
	data, err := json.Marshal(ChangePayload{
		Table:    "gated_content",
		CoupleID: "couple-1",
		AuthorID: "supporter-1",
		Date:     "2026-08-29",
	})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 4)
	assert.NotContains(t, fields, "message")
	assert.NotContains(t, fields, "daily_photo_paths")
}

func TestNewReply(t *testing.T) {
	original := NewMessage(MessageTypePing, PingPayload{ClientTime: 123})
	original.ID = "msg-1"

	reply := NewReply(original, MessageTypePong, PongPayload{ClientTime: 123, ServerTime: 456})
	assert.Equal(t, "msg-1", reply.ReplyTo)
	assert.Equal(t, MessageTypePong, reply.Type)
}

func TestParsePayloadNil(t *testing.T) {
	msg := &Message{Type: MessageTypeSystem}
	var payload SystemPayload
	assert.NoError(t, msg.ParsePayload(&payload))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 3)

	// The burst drains immediately.
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "token %d", i)
	}
	assert.False(t, rl.Allow())

	// Tokens refill over time.
	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow())
}
