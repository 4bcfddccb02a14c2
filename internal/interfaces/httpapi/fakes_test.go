package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"devdash/internal/application"
	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	stubAccount0 = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	stubAccount1 = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

// stubNode is a small anvil-like chain: two funded accounts and empty blocks 0..latest.
type stubNode struct {
	mu     sync.Mutex
	latest uint64
	signer string
	mined  uint64
}

func (n *stubNode) NetworkInfo(context.Context) (domain.NetworkInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return domain.NetworkInfo{ChainID: 31337, Name: "anvil", GasPrice: big.NewInt(2_000_000_000), LatestBlock: n.latest}, nil
}

func (n *stubNode) Accounts(context.Context) ([]string, error) {
	return []string{stubAccount0, stubAccount1}, nil
}

func (n *stubNode) Balance(context.Context, string) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18)), nil
}

func (n *stubNode) Nonce(context.Context, string) (uint64, error) { return 0, nil }

func (n *stubNode) LatestBlockNumber(context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest, nil
}

func (n *stubNode) BlockByNumber(_ context.Context, number uint64) (domain.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if number > n.latest {
		return domain.Block{}, domain.ErrNotFound
	}
	return domain.Block{Number: number, Hash: fmt.Sprintf("0x%064x", number+1), GasLimit: 30_000_000}, nil
}

func (n *stubNode) BlocksBelow(ctx context.Context, head uint64, count int) []domain.Block {
	var blocks []domain.Block
	for i := 0; i < count && uint64(i) <= head; i++ {
		if block, err := n.BlockByNumber(ctx, head-uint64(i)); err == nil {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func (n *stubNode) TransactionByHash(context.Context, string) (domain.Transaction, error) {
	return domain.Transaction{}, domain.ErrNotFound
}

func (n *stubNode) Receipt(context.Context, string) (domain.Receipt, error) {
	return domain.Receipt{}, domain.ErrNotFound
}

func (n *stubNode) Code(context.Context, string) ([]byte, error) { return nil, nil }

func (n *stubNode) SignerAddress() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.signer, n.signer != ""
}

func (n *stubNode) AttachSigner(hexKey string) error {
	if hexKey != "valid" {
		return &domain.SigningError{Err: errors.New("bad key")}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signer = stubAccount0
	return nil
}

func (n *stubNode) SendValueTransfer(context.Context, string, *big.Int) (string, error) {
	return "0x" + fmt.Sprintf("%064x", 1), nil
}

func (n *stubNode) DeployContract(context.Context, abi.ABI, []byte, ...any) (string, string, error) {
	return "0x5fbdb2315678afecb367f032d93f642f64180aa3", fmt.Sprintf("0x%064x", 2), nil
}

func (n *stubNode) CallContract(context.Context, string, abi.ABI, string, ...any) ([]any, error) {
	return []any{big.NewInt(42)}, nil
}

func (n *stubNode) TransactContract(context.Context, string, abi.ABI, string, *big.Int, ...any) (domain.Receipt, error) {
	return domain.Receipt{Status: 1, GasUsed: 30_000}, nil
}

func (n *stubNode) SendRawTransaction(context.Context, []byte) (string, error) {
	return fmt.Sprintf("0x%064x", 3), nil
}

func (n *stubNode) Mine(_ context.Context, blocks uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latest += blocks
	n.mined += blocks
	return nil
}

func (n *stubNode) IncreaseTime(context.Context, uint64) error          { return nil }
func (n *stubNode) SetNextBlockTimestamp(context.Context, uint64) error { return nil }
func (n *stubNode) SetAutomine(context.Context, bool) error             { return nil }
func (n *stubNode) Snapshot(context.Context) (string, error)            { return "0x1", nil }
func (n *stubNode) Revert(_ context.Context, id string) (bool, error)   { return id == "0x1", nil }
func (n *stubNode) Impersonate(context.Context, string) error           { return nil }
func (n *stubNode) StopImpersonating(context.Context, string) error     { return nil }
func (n *stubNode) Close()                                              {}

func (n *stubNode) dialer() application.DialFunc {
	return func(ctx context.Context, endpoint string) (application.NodeClient, domain.NetworkInfo, error) {
		if endpoint == "http://unreachable:1" {
			return nil, domain.NetworkInfo{}, &domain.ConnectionError{Endpoint: endpoint, Err: errors.New("connection refused")}
		}
		info, _ := n.NetworkInfo(ctx)
		return n, info, nil
	}
}

type memStore struct {
	mu            sync.Mutex
	verifications map[string]domain.Verification
	deployments   []domain.Deployment
}

func newMemStore() *memStore {
	return &memStore{verifications: make(map[string]domain.Verification)}
}

func (m *memStore) GetVerification(_ context.Context, address string) (domain.Verification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[domain.NormalizeAddress(address)]
	return v, ok, nil
}

func (m *memStore) PutVerification(_ context.Context, address string, v domain.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[domain.NormalizeAddress(address)] = v
	return nil
}

func (m *memStore) AddDeployment(_ context.Context, d domain.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments = append([]domain.Deployment{d}, m.deployments...)
	return nil
}

func (m *memStore) ListDeployments(_ context.Context, limit int) ([]domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deployments) < limit {
		limit = len(m.deployments)
	}
	return append([]domain.Deployment(nil), m.deployments[:limit]...), nil
}

type stubCompiler struct{}

func (stubCompiler) Compile(_ context.Context, source string) ([]domain.CompiledContract, error) {
	if source == "broken" {
		return nil, &domain.CompileError{Message: "ParserError: Expected pragma"}
	}
	return []domain.CompiledContract{{
		Name:     "Counter",
		ABI:      []byte(`[{"type":"function","name":"get","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}]`),
		Bytecode: []byte{0x60, 0x80, 0x60, 0x40, 0x52},
	}}, nil
}
