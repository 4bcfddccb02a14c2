package domain

import "math/big"

type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusPending TxStatus = "pending"
)

type TxKind string

const (
	TxKindTransfer         TxKind = "Transfer"
	TxKindContractCreation TxKind = "Contract Creation"
)

// Transaction is a chain transaction, hydrated with its receipt when mined.
type Transaction struct {
	Hash            string
	BlockNumber     uint64
	From            string
	To              *string
	Value           *big.Int
	Gas             uint64
	GasUsed         uint64
	GasPrice        *big.Int
	Nonce           uint64
	Input           []byte
	Status          TxStatus
	Timestamp       uint64
	Kind            TxKind
	ContractAddress string
}

// IsCreation reports whether the transaction deploys a contract.
func (t Transaction) IsCreation() bool {
	return t.To == nil
}

// ClassifyTx returns the display kind for a transaction recipient.
func ClassifyTx(to *string) TxKind {
	if to == nil {
		return TxKindContractCreation
	}
	return TxKindTransfer
}
