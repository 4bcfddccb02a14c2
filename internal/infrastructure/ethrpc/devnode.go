package ethrpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Mine produces n blocks. anvil_mine is tried first, then evm_mine once per block
// for nodes that only speak the hardhat dialect.
func (c *Client) Mine(ctx context.Context, blocks uint64) error {
	if blocks == 0 {
		blocks = 1
	}
	if err := c.call(ctx, nil, "anvil_mine", hexutil.EncodeUint64(blocks)); err == nil {
		return nil
	}
	for i := uint64(0); i < blocks; i++ {
		if err := c.call(ctx, nil, "evm_mine"); err != nil {
			return err
		}
	}
	return nil
}

// IncreaseTime advances the node clock. Nodes disagree on the shape of the
// result so it is not decoded.
func (c *Client) IncreaseTime(ctx context.Context, seconds uint64) error {
	return c.call(ctx, nil, "evm_increaseTime", hexutil.EncodeUint64(seconds))
}

func (c *Client) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error {
	return c.call(ctx, nil, "evm_setNextBlockTimestamp", hexutil.EncodeUint64(timestamp))
}

func (c *Client) SetAutomine(ctx context.Context, enabled bool) error {
	return c.call(ctx, nil, "evm_setAutomine", enabled)
}

// Snapshot records node state and returns the id to revert to.
func (c *Client) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := c.call(ctx, &id, "evm_snapshot"); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) Revert(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := c.call(ctx, &ok, "evm_revert", id); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *Client) Impersonate(ctx context.Context, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	return c.call(ctx, nil, "anvil_impersonateAccount", common.HexToAddress(address))
}

func (c *Client) StopImpersonating(ctx context.Context, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	return c.call(ctx, nil, "anvil_stopImpersonatingAccount", common.HexToAddress(address))
}
