package application

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var errFake = errors.New("fake failure")

type fakeTx struct {
	tx      domain.Transaction
	receipt domain.Receipt
	code    []byte
}

// fakeChain is an in-memory NodeClient.
type fakeChain struct {
	mu sync.Mutex

	chainID     uint64
	gasPrice    *big.Int
	networkErr  error
	accounts    []string
	accountsErr error
	balances    map[string]*big.Int
	balanceErr  map[string]error
	nonces      map[string]uint64
	blocks      map[uint64]domain.Block
	blockErr    map[uint64]error
	txs         map[string]domain.Transaction
	txErr       map[string]error
	receipts    map[string]domain.Receipt
	codes       map[string][]byte
	latest      uint64

	signer    string
	attachErr error
	closed    bool

	// gate blocks NetworkInfo until closed. entered is signalled first.
	gate    chan struct{}
	entered chan struct{}

	blocksRequested []uint64
	transfers       []string
	deploys         int
	calls           []string
	transacts       []string
	mined           uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:    31337,
		gasPrice:   big.NewInt(1_000_000_000),
		balances:   map[string]*big.Int{},
		balanceErr: map[string]error{},
		nonces:     map[string]uint64{},
		blocks:     map[uint64]domain.Block{},
		blockErr:   map[uint64]error{},
		txs:        map[string]domain.Transaction{},
		txErr:      map[string]error{},
		receipts:   map[string]domain.Receipt{},
		codes:      map[string][]byte{},
	}
}

func (f *fakeChain) addAccount(address string, balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, address)
	f.balances[address] = balance
}

func (f *fakeChain) addBlock(number uint64, txs ...fakeTx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	block := domain.Block{
		Number:    number,
		Hash:      hashFor("block", number),
		Timestamp: 1_700_000_000 + number,
		GasLimit:  30_000_000,
	}
	for _, item := range txs {
		item.tx.BlockNumber = number
		block.TxHashes = append(block.TxHashes, item.tx.Hash)
		f.txs[item.tx.Hash] = item.tx
		item.receipt.TxHash = item.tx.Hash
		item.receipt.BlockNumber = number
		f.receipts[item.tx.Hash] = item.receipt
		if item.receipt.ContractAddress != "" && item.code != nil {
			f.codes[item.receipt.ContractAddress] = item.code
		}
	}
	block.TxCount = len(block.TxHashes)
	f.blocks[number] = block
	if number > f.latest {
		f.latest = number
	}
}

func (f *fakeChain) setLatest(number uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = number
}

func (f *fakeChain) setNetworkErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkErr = err
}

func (f *fakeChain) block() (chan struct{}, chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	return f.gate, f.entered
}

func (f *fakeChain) NetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.networkErr != nil {
		return domain.NetworkInfo{}, f.networkErr
	}
	return domain.NetworkInfo{
		ChainID:     f.chainID,
		Name:        domain.NetworkName(f.chainID),
		GasPrice:    new(big.Int).Set(f.gasPrice),
		LatestBlock: f.latest,
	}, nil
}

func (f *fakeChain) Accounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return append([]string(nil), f.accounts...), nil
}

func (f *fakeChain) Balance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.balanceErr[address]; err != nil {
		return nil, err
	}
	if balance, ok := f.balances[address]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) Nonce(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[address], nil
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeChain) BlocksBelow(ctx context.Context, head uint64, count int) []domain.Block {
	var blocks []domain.Block
	for i := 0; i < count && uint64(i) <= head; i++ {
		if block, err := f.BlockByNumber(ctx, head-uint64(i)); err == nil {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func (f *fakeChain) BlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocksRequested = append(f.blocksRequested, number)
	if err := f.blockErr[number]; err != nil {
		return domain.Block{}, err
	}
	block, ok := f.blocks[number]
	if !ok {
		return domain.Block{Number: number, Hash: hashFor("block", number)}, nil
	}
	return block, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.txErr[hash]; err != nil {
		return domain.Transaction{}, err
	}
	tx, ok := f.txs[hash]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (f *fakeChain) Receipt(ctx context.Context, hash string) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	if !ok {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return receipt, nil
}

func (f *fakeChain) Code(ctx context.Context, address string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[address], nil
}

func (f *fakeChain) SignerAddress() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signer, f.signer != ""
}

func (f *fakeChain) AttachSigner(hexKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.signer = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	return nil
}

func (f *fakeChain) SendValueTransfer(ctx context.Context, to string, wei *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, to)
	return hashFor("transfer", uint64(len(f.transfers))), nil
}

func (f *fakeChain) DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, args ...any) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deploys++
	return "0x5fbdb2315678afecb367f032d93f642f64180aa3", hashFor("deploy", uint64(f.deploys)), nil
}

func (f *fakeChain) CallContract(ctx context.Context, address string, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	return []any{big.NewInt(42)}, nil
}

func (f *fakeChain) TransactContract(ctx context.Context, address string, contractABI abi.ABI, method string, value *big.Int, args ...any) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts = append(f.transacts, method)
	return domain.Receipt{TxHash: hashFor("call", uint64(len(f.transacts))), Status: 1, GasUsed: 43000}, nil
}

func (f *fakeChain) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return hashFor("raw", uint64(len(raw))), nil
}

func (f *fakeChain) Mine(ctx context.Context, blocks uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mined += blocks
	f.latest += blocks
	return nil
}

func (f *fakeChain) IncreaseTime(ctx context.Context, seconds uint64) error            { return nil }
func (f *fakeChain) SetNextBlockTimestamp(ctx context.Context, timestamp uint64) error { return nil }
func (f *fakeChain) SetAutomine(ctx context.Context, enabled bool) error               { return nil }
func (f *fakeChain) Snapshot(ctx context.Context) (string, error)                      { return "0x1", nil }
func (f *fakeChain) Revert(ctx context.Context, id string) (bool, error)               { return id == "0x1", nil }
func (f *fakeChain) Impersonate(ctx context.Context, address string) error             { return nil }
func (f *fakeChain) StopImpersonating(ctx context.Context, address string) error       { return nil }

func (f *fakeChain) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChain) requestedBlocks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]uint64(nil), f.blocksRequested...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeChain) dialer() DialFunc {
	return func(ctx context.Context, endpoint string) (NodeClient, domain.NetworkInfo, error) {
		info, err := f.NetworkInfo(ctx)
		if err != nil {
			return nil, domain.NetworkInfo{}, &domain.ConnectionError{Endpoint: endpoint, Err: err}
		}
		return f, info, nil
	}
}

// memStore implements every store interface in memory.
type memStore struct {
	mu            sync.Mutex
	verifications map[string]domain.Verification
	deployments   []domain.Deployment
	settings      *ConnectionSettings
	puts          int
}

func newMemStore() *memStore {
	return &memStore{verifications: map[string]domain.Verification{}}
}

func (m *memStore) GetVerification(ctx context.Context, address string) (domain.Verification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[domain.NormalizeAddress(address)]
	return v, ok, nil
}

func (m *memStore) PutVerification(ctx context.Context, address string, v domain.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.verifications[domain.NormalizeAddress(address)] = v
	return nil
}

func (m *memStore) AddDeployment(ctx context.Context, d domain.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments = append([]domain.Deployment{d}, m.deployments...)
	return nil
}

func (m *memStore) ListDeployments(ctx context.Context, limit int) ([]domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deployments) < limit {
		limit = len(m.deployments)
	}
	return append([]domain.Deployment(nil), m.deployments[:limit]...), nil
}

func (m *memStore) SaveConnection(ctx context.Context, settings ConnectionSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &settings
	return nil
}

func (m *memStore) LoadConnection(ctx context.Context) (ConnectionSettings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return ConnectionSettings{}, false, nil
	}
	return *m.settings, true, nil
}

// xorSealer is a reversible stand-in for the real sealer.
type xorSealer struct{}

func (xorSealer) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ 0x5a
	}
	return out, nil
}

func (s xorSealer) Open(sealed []byte) ([]byte, error) { return s.Seal(sealed) }

type recordingObserver struct {
	mu       sync.Mutex
	refresh  int
	failures int
	states   []SessionState
}

func (o *recordingObserver) OnRefresh(duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refresh++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) OnStateChange(state SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
	contracts [][]domain.ContractRecord
}

func (s *recordingSink) PublishSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *recordingSink) PublishContracts(ctx context.Context, chainID uint64, contracts []domain.ContractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = append(s.contracts, contracts)
	return nil
}

func (s *recordingSink) contractBatches() [][]domain.ContractRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.ContractRecord(nil), s.contracts...)
}
