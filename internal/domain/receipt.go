package domain

import "math/big"

// Receipt represents a transaction receipt from the chain.
type Receipt struct {
	TxHash            string
	BlockNumber       uint64
	BlockHash         string
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	ContractAddress   string
	LogsBloom         []byte
	LogCount          int
}

// TxStatus maps the receipt status field to a display status.
func (r Receipt) TxStatus() TxStatus {
	if r.Status == 1 {
		return TxStatusSuccess
	}
	return TxStatusFailed
}
