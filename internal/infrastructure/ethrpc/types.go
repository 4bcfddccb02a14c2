package ethrpc

import (
	"encoding/json"
	"math/big"
	"strings"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type rpcBlock struct {
	Number       hexutil.Uint64  `json:"number"`
	Hash         common.Hash     `json:"hash"`
	ParentHash   common.Hash     `json:"parentHash"`
	Timestamp    hexutil.Uint64  `json:"timestamp"`
	Miner        common.Address  `json:"miner"`
	GasUsed      hexutil.Uint64  `json:"gasUsed"`
	GasLimit     hexutil.Uint64  `json:"gasLimit"`
	Size         hexutil.Uint64  `json:"size"`
	Transactions json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	Input       hexutil.Bytes   `json:"input"`
}

type rpcReceipt struct {
	TxHash            common.Hash       `json:"transactionHash"`
	BlockNumber       hexutil.Uint64    `json:"blockNumber"`
	BlockHash         common.Hash       `json:"blockHash"`
	Status            hexutil.Uint64    `json:"status"`
	GasUsed           hexutil.Uint64    `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big      `json:"effectiveGasPrice"`
	ContractAddress   *common.Address   `json:"contractAddress"`
	LogsBloom         hexutil.Bytes     `json:"logsBloom"`
	Logs              []json.RawMessage `json:"logs"`
}

func (b rpcBlock) toDomain() (domain.Block, error) {
	hashes, err := decodeTxHashes(b.Transactions)
	if err != nil {
		return domain.Block{}, err
	}
	return domain.Block{
		Number:     uint64(b.Number),
		Hash:       b.Hash.Hex(),
		ParentHash: b.ParentHash.Hex(),
		Timestamp:  uint64(b.Timestamp),
		Miner:      strings.ToLower(b.Miner.Hex()),
		GasUsed:    uint64(b.GasUsed),
		GasLimit:   uint64(b.GasLimit),
		TxCount:    len(hashes),
		Size:       uint64(b.Size),
		TxHashes:   hashes,
	}, nil
}

// decodeTxHashes accepts both hash-only and full-object transaction lists.
func decodeTxHashes(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var hashes []common.Hash
	if err := json.Unmarshal(raw, &hashes); err == nil {
		out := make([]string, 0, len(hashes))
		for _, hash := range hashes {
			out = append(out, hash.Hex())
		}
		return out, nil
	}
	var txs []struct {
		Hash common.Hash `json:"hash"`
	}
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Hash.Hex())
	}
	return out, nil
}

func (t rpcTransaction) toDomain() domain.Transaction {
	tx := domain.Transaction{
		Hash:     t.Hash.Hex(),
		From:     strings.ToLower(t.From.Hex()),
		Value:    bigOrZero(t.Value),
		Gas:      uint64(t.Gas),
		GasPrice: bigOrZero(t.GasPrice),
		Nonce:    uint64(t.Nonce),
		Input:    []byte(t.Input),
		Status:   domain.TxStatusPending,
	}
	if t.BlockNumber != nil {
		tx.BlockNumber = uint64(*t.BlockNumber)
	}
	if t.To != nil {
		to := strings.ToLower(t.To.Hex())
		tx.To = &to
	}
	tx.Kind = domain.ClassifyTx(tx.To)
	return tx
}

func (r rpcReceipt) toDomain() domain.Receipt {
	receipt := domain.Receipt{
		TxHash:            r.TxHash.Hex(),
		BlockNumber:       uint64(r.BlockNumber),
		BlockHash:         r.BlockHash.Hex(),
		Status:            uint64(r.Status),
		GasUsed:           uint64(r.GasUsed),
		EffectiveGasPrice: bigOrZero(r.EffectiveGasPrice),
		LogsBloom:         []byte(r.LogsBloom),
		LogCount:          len(r.Logs),
	}
	if r.ContractAddress != nil && *r.ContractAddress != (common.Address{}) {
		receipt.ContractAddress = strings.ToLower(r.ContractAddress.Hex())
	}
	return receipt
}

func bigOrZero(value *hexutil.Big) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value.ToInt())
}
