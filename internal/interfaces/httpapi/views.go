package httpapi

import (
	"encoding/json"
	"math/big"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"
	"devdash/internal/units"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type networkView struct {
	ChainID      uint64 `json:"chain_id"`
	Name         string `json:"name"`
	GasPriceWei  string `json:"gas_price_wei"`
	GasPriceGwei string `json:"gas_price_gwei"`
	LatestBlock  uint64 `json:"latest_block"`
}

type accountView struct {
	Index        int    `json:"index"`
	Address      string `json:"address"`
	BalanceWei   string `json:"balance_wei"`
	BalanceEther string `json:"balance_ether"`
	Nonce        uint64 `json:"nonce"`
	DevKey       string `json:"dev_key,omitempty"`
}

type blockView struct {
	Number       uint64   `json:"number"`
	Hash         string   `json:"hash"`
	ParentHash   string   `json:"parent_hash"`
	Timestamp    uint64   `json:"timestamp"`
	Miner        string   `json:"miner"`
	GasUsed      uint64   `json:"gas_used"`
	GasLimit     uint64   `json:"gas_limit"`
	TxCount      int      `json:"tx_count"`
	Size         uint64   `json:"size"`
	Transactions []string `json:"transactions"`
}

type transactionView struct {
	Hash            string        `json:"hash"`
	BlockNumber     uint64        `json:"block_number"`
	From            string        `json:"from"`
	To              *string       `json:"to"`
	ValueWei        string        `json:"value_wei"`
	ValueEther      string        `json:"value_ether"`
	Gas             uint64        `json:"gas"`
	GasUsed         uint64        `json:"gas_used"`
	GasPriceGwei    string        `json:"gas_price_gwei"`
	Nonce           uint64        `json:"nonce"`
	Input           hexutil.Bytes `json:"input"`
	Status          string        `json:"status"`
	Timestamp       uint64        `json:"timestamp"`
	Kind            string        `json:"kind"`
	ContractAddress string        `json:"contract_address,omitempty"`
}

type snapshotView struct {
	SessionID     string            `json:"session_id,omitempty"`
	Cycle         uint64            `json:"cycle"`
	State         string            `json:"state"`
	Connected     bool              `json:"connected"`
	Endpoint      string            `json:"endpoint,omitempty"`
	SignerAddress string            `json:"signer_address,omitempty"`
	SignerWarning string            `json:"signer_warning,omitempty"`
	ConnectError  string            `json:"connect_error,omitempty"`
	RefreshError  string            `json:"refresh_error,omitempty"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty"`
	Network       *networkView      `json:"network,omitempty"`
	Accounts      []accountView     `json:"accounts"`
	Blocks        []blockView       `json:"blocks"`
	Transactions  []transactionView `json:"transactions"`
}

type contractView struct {
	Address           string               `json:"address"`
	Name              string               `json:"name"`
	Deployer          string               `json:"deployer"`
	DeploymentTx      string               `json:"deployment_tx"`
	BlockNumber       uint64               `json:"block_number"`
	Timestamp         uint64               `json:"timestamp"`
	Verified          bool                 `json:"verified"`
	Bytecode          hexutil.Bytes        `json:"bytecode"`
	CodeHash          string               `json:"code_hash"`
	SizeBytes         int                  `json:"size_bytes"`
	GasUsed           uint64               `json:"gas_used"`
	GasLimit          uint64               `json:"gas_limit"`
	GasPriceGwei      string               `json:"gas_price_gwei"`
	FeeEther          string               `json:"fee_ether"`
	GasEfficiency     float64              `json:"gas_efficiency"`
	Nonce             uint64               `json:"nonce"`
	LogCount          int                  `json:"log_count"`
	BalanceEther      string               `json:"balance_ether"`
	TxCount           uint64               `json:"tx_count"`
	CompilerGuess     string               `json:"compiler_guess"`
	OptimizationGuess string               `json:"optimization_guess"`
	Verification      *domain.Verification `json:"verification,omitempty"`
}

// compiledContractView carries bytecode as 0x hex in both directions.
type compiledContractView struct {
	Name     string          `json:"name"`
	ABI      json.RawMessage `json:"abi"`
	Bytecode hexutil.Bytes   `json:"bytecode"`
}

type compileView struct {
	Contract    compiledContractView      `json:"contract"`
	Constructor []application.ABIParam    `json:"constructor"`
	Functions   []application.ABIFunction `json:"functions"`
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func newSnapshotView(snap application.Snapshot) snapshotView {
	view := snapshotView{
		SessionID:     snap.SessionID,
		Cycle:         snap.Cycle,
		State:         string(snap.State),
		Connected:     snap.Connected(),
		Endpoint:      snap.Endpoint,
		SignerAddress: snap.SignerAddress,
		SignerWarning: snap.SignerWarning,
		ConnectError:  snap.ConnectError,
		RefreshError:  snap.RefreshError,
		Accounts:      accountViews(snap.Accounts),
		Blocks:        blockViews(snap.Blocks),
		Transactions:  transactionViews(snap.Transactions),
	}
	if !snap.UpdatedAt.IsZero() {
		updated := snap.UpdatedAt
		view.UpdatedAt = &updated
	}
	if snap.Connected() {
		view.Network = &networkView{
			ChainID:      snap.Network.ChainID,
			Name:         snap.Network.Name,
			GasPriceWei:  bigString(snap.Network.GasPrice),
			GasPriceGwei: units.FormatGwei(snap.Network.GasPrice),
			LatestBlock:  snap.Network.LatestBlock,
		}
	}
	return view
}

func accountViews(accounts []domain.Account) []accountView {
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			Index:        a.Index,
			Address:      a.Address,
			BalanceWei:   bigString(a.Balance),
			BalanceEther: units.FormatEther(a.Balance),
			Nonce:        a.Nonce,
			DevKey:       a.DevKey,
		})
	}
	return views
}

func blockViews(blocks []domain.Block) []blockView {
	views := make([]blockView, 0, len(blocks))
	for _, b := range blocks {
		hashes := b.TxHashes
		if hashes == nil {
			hashes = []string{}
		}
		views = append(views, blockView{
			Number:       b.Number,
			Hash:         b.Hash,
			ParentHash:   b.ParentHash,
			Timestamp:    b.Timestamp,
			Miner:        b.Miner,
			GasUsed:      b.GasUsed,
			GasLimit:     b.GasLimit,
			TxCount:      b.TxCount,
			Size:         b.Size,
			Transactions: hashes,
		})
	}
	return views
}

func transactionViews(txs []domain.Transaction) []transactionView {
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, transactionView{
			Hash:            tx.Hash,
			BlockNumber:     tx.BlockNumber,
			From:            tx.From,
			To:              tx.To,
			ValueWei:        bigString(tx.Value),
			ValueEther:      units.FormatEther(tx.Value),
			Gas:             tx.Gas,
			GasUsed:         tx.GasUsed,
			GasPriceGwei:    units.FormatGwei(tx.GasPrice),
			Nonce:           tx.Nonce,
			Input:           tx.Input,
			Status:          string(tx.Status),
			Timestamp:       tx.Timestamp,
			Kind:            string(tx.Kind),
			ContractAddress: tx.ContractAddress,
		})
	}
	return views
}

func newContractView(c domain.ContractRecord) contractView {
	return contractView{
		Address:           c.Address,
		Name:              c.Name,
		Deployer:          c.Deployer,
		DeploymentTx:      c.DeploymentTx,
		BlockNumber:       c.BlockNumber,
		Timestamp:         c.Timestamp,
		Verified:          c.Verified,
		Bytecode:          c.Bytecode,
		CodeHash:          c.CodeHash,
		SizeBytes:         c.SizeBytes,
		GasUsed:           c.GasUsed,
		GasLimit:          c.GasLimit,
		GasPriceGwei:      units.FormatGwei(c.GasPrice),
		FeeEther:          units.FormatEther(c.Fee),
		GasEfficiency:     c.GasEfficiency,
		Nonce:             c.Nonce,
		LogCount:          c.LogCount,
		BalanceEther:      units.FormatEther(c.Balance),
		TxCount:           c.TxCount,
		CompilerGuess:     c.CompilerGuess,
		OptimizationGuess: c.OptimizationGuess,
		Verification:      c.Verification,
	}
}

func contractViews(contracts []domain.ContractRecord) []contractView {
	views := make([]contractView, 0, len(contracts))
	for _, c := range contracts {
		views = append(views, newContractView(c))
	}
	return views
}

func newCompileView(result application.CompileResult) compileView {
	return compileView{
		Contract: compiledContractView{
			Name:     result.Contract.Name,
			ABI:      result.Contract.ABI,
			Bytecode: result.Contract.Bytecode,
		},
		Constructor: result.Constructor,
		Functions:   result.Functions,
	}
}
