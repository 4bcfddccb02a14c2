package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRejectsIncompleteMessages(t *testing.T) {
	_, err := Encode(Message{ChainID: 31337})
	require.Error(t, err)

	_, err = Encode(Message{Type: MessageTypeSnapshot})
	require.Error(t, err)

	_, err = Encode(Message{Type: MessageTypeContract, ChainID: 31337})
	require.Error(t, err)
}

func TestContractMessageDecodes(t *testing.T) {
	payload, err := Encode(Message{
		Type:      MessageTypeContract,
		ChainID:   31337,
		Address:   "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		Name:      "Unknown",
		SizeBytes: 120,
	})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "session_id")

	msg, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeContract, msg.Type)
	assert.Equal(t, 120, msg.SizeBytes)
}

func TestDecodeRequiresType(t *testing.T) {
	_, err := Decode([]byte(`{"chain_id":1}`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"type":"snapshot"}`))
	require.Error(t, err)

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}
