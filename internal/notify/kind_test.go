package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Run("should parse every wire name back to its kind", func(t *testing.T) {
		req := require.New(t)
		for k := Connected; k < numKinds; k++ {
			got, err := ParseKind(k.String())
			req.NoError(err)
			req.Equal(k, got)
		}
	})

	t.Run("should reject unknown names", func(t *testing.T) {
		req := require.New(t)
		_, err := ParseKind("groupRenamed")
		req.Error(err)
		var k Kind
		req.Error(json.Unmarshal([]byte(`"nope"`), &k))
	})

	t.Run("should encode as the wire name", func(t *testing.T) {
		req := require.New(t)
		b, err := json.Marshal(Event{Event: MessageReceived, Data: 1})
		req.NoError(err)
		req.JSONEq(`{"event":"messageReceived","data":1}`, string(b))
	})

	t.Run("should only let clients send join and typing events", func(t *testing.T) {
		req := require.New(t)
		var allowed []Kind
		for k := Connected; k < numKinds; k++ {
			if k.ClientOriginated() {
				allowed = append(allowed, k)
			}
		}
		req.Equal([]Kind{JoinChat, Typing, StopTyping}, allowed)
	})
}
