package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type DecodedArg struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type DecodedCall struct {
	Method    string       `json:"method"`
	Signature string       `json:"signature"`
	Selector  string       `json:"selector"`
	Args      []DecodedArg `json:"args"`
}

// DecodeCalldata matches the selector of data against abiJSON and unpacks
// the arguments.
func DecodeCalldata(abiJSON []byte, data []byte) (DecodedCall, error) {
	if len(data) < 4 {
		return DecodedCall{}, errors.New("calldata is shorter than a selector")
	}
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return DecodedCall{}, fmt.Errorf("parse abi: %w", err)
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return DecodedCall{}, fmt.Errorf("selector %s: %w", hexutil.Encode(data[:4]), domain.ErrNotFound)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return DecodedCall{}, fmt.Errorf("unpack %s: %w", method.Sig, err)
	}
	call := DecodedCall{
		Method:    method.Name,
		Signature: method.Sig,
		Selector:  hexutil.Encode(method.ID),
		Args:      make([]DecodedArg, len(values)),
	}
	for i, value := range values {
		input := method.Inputs[i]
		call.Args[i] = DecodedArg{Name: input.Name, Type: input.Type.String(), Value: FormatValue(value)}
	}
	return call, nil
}

// DecodeHexCalldata is DecodeCalldata for 0x-prefixed input.
func DecodeHexCalldata(abiJSON []byte, data string) (DecodedCall, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(data))
	if err != nil {
		return DecodedCall{}, fmt.Errorf("calldata: %w", err)
	}
	return DecodeCalldata(abiJSON, raw)
}

// NodeTools runs dev-node control methods on the connected session. Every
// successful call is followed by a refresh.
type NodeTools struct {
	session *Session
}

func NewNodeTools(session *Session) *NodeTools {
	return &NodeTools{session: session}
}

func (t *NodeTools) Mine(ctx context.Context, blocks uint64) error {
	return t.run(ctx, "mine", func(node NodeClient) error {
		return node.Mine(ctx, blocks)
	})
}

func (t *NodeTools) IncreaseTime(ctx context.Context, seconds uint64) error {
	return t.run(ctx, "increase time", func(node NodeClient) error {
		return node.IncreaseTime(ctx, seconds)
	})
}

func (t *NodeTools) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	return t.run(ctx, "set next block timestamp", func(node NodeClient) error {
		return node.SetNextBlockTimestamp(ctx, timestamp)
	})
}

func (t *NodeTools) SetAutomine(ctx context.Context, enabled bool) error {
	return t.run(ctx, "set automine", func(node NodeClient) error {
		return node.SetAutomine(ctx, enabled)
	})
}

func (t *NodeTools) Snapshot(ctx context.Context) (string, error) {
	var id string
	err := t.run(ctx, "snapshot", func(node NodeClient) error {
		var err error
		id, err = node.Snapshot(ctx)
		return err
	})
	return id, err
}

// Revert restores a snapshot. Snapshot ids are single use on anvil and hardhat.
func (t *NodeTools) Revert(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := t.run(ctx, "revert", func(node NodeClient) error {
		var err error
		ok, err = node.Revert(ctx, id)
		return err
	})
	return ok, err
}

func (t *NodeTools) Impersonate(ctx context.Context, address string) error {
	return t.run(ctx, "impersonate", func(node NodeClient) error {
		return node.Impersonate(ctx, address)
	})
}

func (t *NodeTools) StopImpersonating(ctx context.Context, address string) error {
	return t.run(ctx, "stop impersonating", func(node NodeClient) error {
		return node.StopImpersonating(ctx, address)
	})
}

func (t *NodeTools) SendRawTransaction(ctx context.Context, raw string) (string, error) {
	data, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("raw transaction: %w", err)
	}
	var hash string
	err = t.run(ctx, "send raw transaction", func(node NodeClient) error {
		var err error
		hash, err = node.SendRawTransaction(ctx, data)
		return err
	})
	return hash, err
}

func (t *NodeTools) run(ctx context.Context, action string, fn func(NodeClient) error) error {
	node, err := t.session.Client()
	if err != nil {
		return err
	}
	if err := fn(node); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	slog.Info("node tool", "action", action)
	t.session.refreshAfterAction(ctx)
	return nil
}
