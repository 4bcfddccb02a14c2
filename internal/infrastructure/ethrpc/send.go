package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const transferGasLimit = 21000

var ErrReverted = errors.New("transaction reverted")

// SendValueTransfer signs and submits a plain value transfer. Without a signer
// it fails with domain.ErrNoSigner before any RPC call.
func (c *Client) SendValueTransfer(ctx context.Context, to string, wei *big.Int) (string, error) {
	signer, err := c.currentSigner()
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("invalid recipient %q", to)
	}
	if wei == nil || wei.Sign() < 0 {
		return "", errors.New("value must be non-negative")
	}
	recipient := common.HexToAddress(to)
	return c.signAndSend(ctx, signer, &recipient, wei, nil, transferGasLimit)
}

// DeployContract sends a creation transaction and waits for it to be mined.
func (c *Client) DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, args ...any) (string, string, error) {
	signer, err := c.currentSigner()
	if err != nil {
		return "", "", err
	}
	if len(bytecode) == 0 {
		return "", "", errors.New("bytecode is empty")
	}
	packed, err := contractABI.Pack("", args...)
	if err != nil {
		return "", "", fmt.Errorf("pack constructor: %w", err)
	}
	data := append(append([]byte{}, bytecode...), packed...)

	gas, err := c.estimateGas(ctx, signer.address, nil, nil, data)
	if err != nil {
		return "", "", err
	}
	txHash, err := c.signAndSend(ctx, signer, nil, new(big.Int), data, gas)
	if err != nil {
		return "", "", err
	}
	receipt, err := c.WaitMined(ctx, txHash)
	if err != nil {
		return "", txHash, err
	}
	if receipt.Status != 1 {
		return "", txHash, ErrReverted
	}
	if receipt.ContractAddress == "" {
		return "", txHash, errors.New("receipt has no contract address")
	}
	return receipt.ContractAddress, txHash, nil
}

// CallContract runs a read-only method through eth_call and unpacks the outputs.
func (c *Client) CallContract(ctx context.Context, address string, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	call := map[string]any{
		"to":   common.HexToAddress(address),
		"data": hexutil.Bytes(data),
	}
	if from, ok := c.SignerAddress(); ok {
		call["from"] = common.HexToAddress(from)
	}
	var out hexutil.Bytes
	if err := c.call(ctx, &out, "eth_call", call, "latest"); err != nil {
		return nil, err
	}
	return contractABI.Unpack(method, out)
}

// TransactContract sends a state-changing method call and waits for the receipt.
func (c *Client) TransactContract(ctx context.Context, address string, contractABI abi.ABI, method string, value *big.Int, args ...any) (domain.Receipt, error) {
	signer, err := c.currentSigner()
	if err != nil {
		return domain.Receipt{}, err
	}
	if !common.IsHexAddress(address) {
		return domain.Receipt{}, fmt.Errorf("invalid contract address %q", address)
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	to := common.HexToAddress(address)
	gas, err := c.estimateGas(ctx, signer.address, &to, value, data)
	if err != nil {
		return domain.Receipt{}, err
	}
	txHash, err := c.signAndSend(ctx, signer, &to, value, data, gas)
	if err != nil {
		return domain.Receipt{}, err
	}
	return c.WaitMined(ctx, txHash)
}

// SendRawTransaction submits an already signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var hash common.Hash
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// WaitMined polls for a receipt until it appears or ctx is done.
func (c *Client) WaitMined(ctx context.Context, txHash string) (domain.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.Receipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Receipt{}, err
		}
		select {
		case <-ctx.Done():
			return domain.Receipt{}, fmt.Errorf("wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) signAndSend(ctx context.Context, signer *Signer, to *common.Address, value *big.Int, data []byte, gas uint64) (string, error) {
	chainID, err := c.cachedChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := c.nonceAt(ctx, signer.Address(), "pending")
	if err != nil {
		return "", err
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return "", err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), signer.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	return c.SendRawTransaction(ctx, raw)
}

func (c *Client) estimateGas(ctx context.Context, from common.Address, to *common.Address, value *big.Int, data []byte) (uint64, error) {
	call := map[string]any{
		"from": from,
		"data": hexutil.Bytes(data),
	}
	if to != nil {
		call["to"] = *to
	}
	if value != nil && value.Sign() > 0 {
		call["value"] = (*hexutil.Big)(value)
	}
	var gas hexutil.Uint64
	if err := c.call(ctx, &gas, "eth_estimateGas", call); err != nil {
		return 0, err
	}
	// 20% headroom over the estimate.
	return uint64(gas) + uint64(gas)/5, nil
}
