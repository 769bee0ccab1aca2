package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
	"chat-relay/errors"
)

func TestDecode_Authenticate(t *testing.T) {
	req := require.New(t)

	raw := []byte(`{"type":"authenticate","payload":{"identityClaim":"alice@example.com"}}`)
	action, err := Decode(raw)
	req.NoError(err)

	auth, ok := action.(*Authenticate)
	req.True(ok)
	req.Equal("alice@example.com", auth.IdentityClaim)
}

func TestDecode_TypingKindSetsDirection(t *testing.T) {
	req := require.New(t)

	start, err := Decode([]byte(`{"type":"typing_start","payload":{"conversationId":"c1"}}`))
	req.NoError(err)
	req.True(start.(*Typing).IsTyping)

	stop, err := Decode([]byte(`{"type":"typing_stop","payload":{"conversationId":"c1"}}`))
	req.NoError(err)
	req.False(stop.(*Typing).IsTyping)
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Not JSON", `{"type":`},
		{"Unknown action", `{"type":"shout","payload":{}}`},
		{"Missing identity claim", `{"type":"authenticate","payload":{}}`},
		{"Empty content", `{"type":"send_message","payload":{"conversationId":"c1","content":""}}`},
		{"Bad message type", `{"type":"send_message","payload":{"conversationId":"c1","content":"hi","type":"video"}}`},
		{"Bad status", `{"type":"status_update","payload":{"status":"invisible"}}`},
		{"Mark read without ids", `{"type":"mark_read","payload":{"conversationId":"c1","messageIds":[]}}`},
		{"Mark read with junk id", `{"type":"mark_read","payload":{"conversationId":"c1","messageIds":["nope"]}}`},
		{"Search without query", `{"type":"search_messages","payload":{"conversationId":"c1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			require.Equal(t, errors.KindValidation, errors.KindOf(err))
		})
	}
}

func TestDecode_MarkRead(t *testing.T) {
	req := require.New(t)

	raw := []byte(`{"type":"mark_read","payload":{"conversationId":"c1","messageIds":["0b1f7a68-97e2-4a44-89a5-b5f1a2660b3c"]}}`)
	action, err := Decode(raw)
	req.NoError(err)

	mark, ok := action.(*MarkRead)
	req.True(ok)
	req.Equal("c1", mark.ConversationID)
	req.Len(mark.MessageIDs, 1)
}

func TestEncodeEvent_RoundTrip(t *testing.T) {
	req := require.New(t)

	sent := event.UserTyping{ConversationID: "c1", UserID: "alice", IsTyping: true}
	raw, err := EncodeEvent(sent)
	req.NoError(err)
	req.Contains(string(raw), `"type":"user_typing"`)

	decoded, err := DecodeEvent(raw)
	req.NoError(err)
	req.Equal(sent, decoded)
}

func TestEncode_ActionRoundTrip(t *testing.T) {
	req := require.New(t)

	raw, err := Encode(&SendMessage{ConversationID: "c1", Content: "hello", Type: "text"})
	req.NoError(err)

	decoded, err := Decode(raw)
	req.NoError(err)
	req.Equal(&SendMessage{ConversationID: "c1", Content: "hello", Type: "text"}, decoded)
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"mystery","payload":{}}`))
	require.Error(t, err)
}
