package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_EmptyRawYieldsZeroValueNoError(t *testing.T) {
	got, err := DecodePayload[ToggleMediaRequest](nil)
	require.NoError(t, err)
	assert.Equal(t, ToggleMediaRequest{}, got)
}

func TestDecodePayload_MalformedJSONErrors(t *testing.T) {
	_, err := DecodePayload[ToggleMediaRequest](json.RawMessage(`{"paused":`))
	assert.Error(t, err)
}

func TestDecodePayload_DecodesIntoTypedStruct(t *testing.T) {
	raw := json.RawMessage(`{"producerId":"p1","paused":true}`)
	got, err := DecodePayload[ToggleMediaRequest](raw)
	require.NoError(t, err)
	assert.Equal(t, ToggleMediaRequest{ProducerID: "p1", Paused: true}, got)
}

// TestInboundMessage_ReqIDSurvivesRoundTrip guards the ack-correlation
// contract sessionclient.Client.call depends on: reqId must travel under
// exactly that JSON key.
func TestInboundMessage_ReqIDSurvivesRoundTrip(t *testing.T) {
	msg := InboundMessage{ReqID: "req-7", Event: EventJoinRoom, Payload: json.RawMessage(`{}`)}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reqId":"req-7"`)

	var decoded InboundMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.ReqID, decoded.ReqID)
	assert.Equal(t, msg.Event, decoded.Event)
}

func TestAckMessage_OmitsEmptyResultAndError(t *testing.T) {
	data, err := json.Marshal(AckMessage{ReqID: "req-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reqId":"req-1"}`, string(data))
}
