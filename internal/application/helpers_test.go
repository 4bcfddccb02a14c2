package application

import (
	"fmt"
	"math/big"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	devAddress0 = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	devAddress1 = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

func hashFor(kind string, n uint64) string {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", kind, n))).Hex()
}

func addressFor(n uint64) string {
	return domain.NormalizeAddress(crypto.Keccak256Hash([]byte(fmt.Sprintf("addr-%d", n))).Hex()[:42])
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func transferTx(n uint64) fakeTx {
	to := addressFor(1000 + n)
	return fakeTx{
		tx: domain.Transaction{
			Hash:     hashFor("tx", n),
			From:     devAddress0,
			To:       &to,
			Value:    ether(1),
			Gas:      21000,
			GasPrice: big.NewInt(1_000_000_000),
			Kind:     domain.TxKindTransfer,
		},
		receipt: domain.Receipt{Status: 1, GasUsed: 21000},
	}
}

func creationTx(n uint64, contract string, code []byte) fakeTx {
	return fakeTx{
		tx: domain.Transaction{
			Hash:     hashFor("create", n),
			From:     devAddress0,
			Value:    new(big.Int),
			Gas:      500_000,
			GasPrice: big.NewInt(2_000_000_000),
			Nonce:    n,
			Input:    []byte{0x60, 0x80, 0x60, 0x40, 0x52},
			Kind:     domain.TxKindContractCreation,
		},
		receipt: domain.Receipt{Status: 1, GasUsed: 250_000, ContractAddress: contract, LogCount: 1},
		code:    code,
	}
}
