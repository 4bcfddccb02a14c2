package application

import (
	"context"
	"math/big"
	"time"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

type ChainReader interface {
	NetworkInfo(ctx context.Context) (domain.NetworkInfo, error)
	Accounts(ctx context.Context) ([]string, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
	Nonce(ctx context.Context, address string) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (domain.Block, error)
	// BlocksBelow returns up to count blocks from head downwards, newest
	// first, skipping blocks that fail to load.
	BlocksBelow(ctx context.Context, head uint64, count int) []domain.Block
	TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error)
	Receipt(ctx context.Context, hash string) (domain.Receipt, error)
	Code(ctx context.Context, address string) ([]byte, error)
}

type Transactor interface {
	SignerAddress() (string, bool)
	SendValueTransfer(ctx context.Context, to string, wei *big.Int) (string, error)
	DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, args ...any) (string, string, error)
	CallContract(ctx context.Context, address string, contractABI abi.ABI, method string, args ...any) ([]any, error)
	TransactContract(ctx context.Context, address string, contractABI abi.ABI, method string, value *big.Int, args ...any) (domain.Receipt, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
}

type DevNode interface {
	Mine(ctx context.Context, blocks uint64) error
	IncreaseTime(ctx context.Context, seconds uint64) error
	SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error
	SetAutomine(ctx context.Context, enabled bool) error
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) (bool, error)
	Impersonate(ctx context.Context, address string) error
	StopImpersonating(ctx context.Context, address string) error
}

// NodeClient is everything a connected session needs from the node.
type NodeClient interface {
	ChainReader
	Transactor
	DevNode
	AttachSigner(hexKey string) error
	Close()
}

// DialFunc connects to endpoint and performs the liveness check. Failures
// should be *domain.ConnectionError.
type DialFunc func(ctx context.Context, endpoint string) (NodeClient, domain.NetworkInfo, error)

type VerificationStore interface {
	GetVerification(ctx context.Context, address string) (domain.Verification, bool, error)
	PutVerification(ctx context.Context, address string, v domain.Verification) error
}

type DeploymentStore interface {
	AddDeployment(ctx context.Context, d domain.Deployment) error
	ListDeployments(ctx context.Context, limit int) ([]domain.Deployment, error)
}

// ConnectionSettings is the remembered connection. SealedKey is empty unless a
// key sealer was configured.
type ConnectionSettings struct {
	Endpoint  string
	SealedKey []byte
}

type SettingsStore interface {
	SaveConnection(ctx context.Context, settings ConnectionSettings) error
	LoadConnection(ctx context.Context) (ConnectionSettings, bool, error)
}

type KeySealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// EventSink receives snapshot and contract discovery events.
type EventSink interface {
	PublishSnapshot(ctx context.Context, snap Snapshot) error
	PublishContracts(ctx context.Context, chainID uint64, contracts []domain.ContractRecord) error
}

type SessionObserver interface {
	OnRefresh(duration time.Duration, err error)
	OnStateChange(state SessionState)
}

type ScanObserver interface {
	OnScan(duration time.Duration, blocks int, contracts int)
}
