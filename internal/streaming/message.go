package streaming

import (
	"encoding/json"
	"errors"
)

type MessageType string

const (
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeContract MessageType = "contract"
)

// Message is the envelope published for dashboard events. Snapshot messages
// carry the Session and head fields; contract messages carry the contract fields.
type Message struct {
	Type         MessageType `json:"type"`
	ChainID      uint64      `json:"chain_id"`
	TraceID      string      `json:"trace_id,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	Cycle        uint64      `json:"cycle,omitempty"`
	Endpoint     string      `json:"endpoint,omitempty"`
	BlockNumber  uint64      `json:"block_number,omitempty"`
	AccountCount int         `json:"account_count,omitempty"`
	TxCount      int         `json:"tx_count,omitempty"`
	Address      string      `json:"address,omitempty"`
	Name         string      `json:"name,omitempty"`
	Deployer     string      `json:"deployer,omitempty"`
	TxHash       string      `json:"tx_hash,omitempty"`
	CodeHash     string      `json:"code_hash,omitempty"`
	SizeBytes    int         `json:"size_bytes,omitempty"`
	Verified     bool        `json:"verified,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.ChainID == 0 {
		return nil, errors.New("chain_id is required")
	}
	if msg.Type == MessageTypeContract && msg.Address == "" {
		return nil, errors.New("contract address is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.ChainID == 0 {
		return Message{}, errors.New("chain_id is missing")
	}
	return msg, nil
}
