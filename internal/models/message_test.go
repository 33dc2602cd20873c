package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeWireFormat(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
		want string
	}{
		{
			name: "first joiner gets an empty member list",
			env:  YouJoined("X", nil),
			want: `{"type":"you-joined","selfId":"X","members":[]}`,
		},
		{
			name: "joiner sees existing members",
			env:  YouJoined("Y", []string{"X"}),
			want: `{"type":"you-joined","selfId":"Y","members":["X"]}`,
		},
		{
			name: "chat keeps empty text",
			env:  ChatBroadcast("X", "Dr Who", ""),
			want: `{"type":"chat-message","fromId":"X","senderDisplayName":"Dr Who","text":""}`,
		},
		{
			name: "other events omit unset fields",
			env:  UserLeft("X"),
			want: `{"type":"user-left","memberId":"X"}`,
		},
		{
			name: "signal payload is forwarded verbatim",
			env:  RelayedSignal("X", json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0"}}`)),
			want: `{"type":"signal","fromId":"X","payload":{"sdp":{"type":"offer","sdp":"v=0"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestFirstJoinMembersIsArray(t *testing.T) {
	data, err := json.Marshal(YouJoined("X", nil))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "members")
	assert.Equal(t, "[]", string(raw["members"]))
}
