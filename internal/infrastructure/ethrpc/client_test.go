package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devKey0     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress0 = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type handlerFunc func(params []json.RawMessage) (any, *rpcFailure)

// fakeNode answers single JSON-RPC requests from a method table.
type fakeNode struct {
	mu       sync.Mutex
	methods  map[string]handlerFunc
	calls    []string
	server   *httptest.Server
	notFound *rpcFailure
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	node := &fakeNode{
		methods:  map[string]handlerFunc{},
		notFound: &rpcFailure{Code: -32601, Message: "method not found"},
	}
	node.server = httptest.NewServer(http.HandlerFunc(node.serve))
	t.Cleanup(node.server.Close)
	return node
}

func (n *fakeNode) handle(method string, fn handlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = fn
}

func (n *fakeNode) result(method string, value any) {
	n.handle(method, func([]json.RawMessage) (any, *rpcFailure) { return value, nil })
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, call := range n.calls {
		if call == method {
			count++
		}
	}
	return count
}

func (n *fakeNode) totalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls = append(n.calls, req.Method)
	fn, ok := n.methods[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = n.notFound
	} else if result, failure := fn(req.Params); failure != nil {
		resp["error"] = failure
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) client(t *testing.T) *Client {
	t.Helper()
	client, err := Dial(context.Background(), Config{URL: n.server.URL})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func blockJSON(number uint64, txs ...string) map[string]any {
	if txs == nil {
		txs = []string{}
	}
	return map[string]any{
		"number":       hexutil.EncodeUint64(number),
		"hash":         common.BigToHash(new(big.Int).SetUint64(number + 1000)).Hex(),
		"parentHash":   common.BigToHash(new(big.Int).SetUint64(number + 999)).Hex(),
		"timestamp":    hexutil.EncodeUint64(1700000000 + number),
		"miner":        "0x0000000000000000000000000000000000000000",
		"gasUsed":      "0x5208",
		"gasLimit":     "0x1c9c380",
		"size":         "0x220",
		"transactions": txs,
	}
}

func TestConnectReturnsNetworkInfo(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_chainId", "0x7a69")
	node.result("eth_blockNumber", "0x2")
	node.result("eth_gasPrice", "0x3b9aca00")

	client, info, err := Connect(context.Background(), Config{URL: node.server.URL})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, uint64(31337), info.ChainID)
	assert.Equal(t, "anvil", info.Name)
	assert.Equal(t, uint64(2), info.LatestBlock)
	assert.Equal(t, big.NewInt(1_000_000_000), info.GasPrice)
}

func TestConnectFailsLivenessCheck(t *testing.T) {
	node := newFakeNode(t)
	node.handle("eth_chainId", func([]json.RawMessage) (any, *rpcFailure) {
		return nil, &rpcFailure{Code: -32000, Message: "node is starting"}
	})

	_, _, err := Connect(context.Background(), Config{URL: node.server.URL})
	require.Error(t, err)
	var connErr *domain.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, node.server.URL, connErr.Endpoint)
	assert.Contains(t, err.Error(), "node is starting")
}

func TestConnectUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, _, err := Connect(context.Background(), Config{URL: url})
	var connErr *domain.ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestDialerUsesEndpoint(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_chainId", "0x7a69")
	node.result("eth_blockNumber", "0x0")
	node.result("eth_gasPrice", "0x1")

	dial := Dialer(Config{URL: "http://ignored:1"})
	client, info, err := dial(context.Background(), node.server.URL)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, uint64(31337), info.ChainID)

	client, _, err = dial(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNetworkInfoToleratesMissingGasPrice(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_chainId", "0x539")
	node.result("eth_blockNumber", "0x0")

	info, err := node.client(t).NetworkInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "localhost", info.Name)
	assert.Equal(t, 0, info.GasPrice.Sign())
}

func TestAccountsPreservesOrder(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_accounts", []string{
		"0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266",
		"0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
	})

	accounts, err := node.client(t).Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{devAddress0, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"}, accounts)
}

func TestBalanceAndNonce(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_getBalance", "0x21e19e0c9bab2400000")
	node.handle("eth_getTransactionCount", func(params []json.RawMessage) (any, *rpcFailure) {
		var tag string
		_ = json.Unmarshal(params[1], &tag)
		if tag == "pending" {
			return "0x4", nil
		}
		return "0x3", nil
	})
	client := node.client(t)

	balance, err := client.Balance(context.Background(), devAddress0)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("10000000000000000000000", 10)
	assert.Equal(t, want, balance)

	nonce, err := client.Nonce(context.Background(), devAddress0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)

	_, err = client.Balance(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestBlockByNumberNotFound(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_getBlockByNumber", nil)

	_, err := node.client(t).BlockByNumber(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlockByNumberDecodesFullTransactions(t *testing.T) {
	node := newFakeNode(t)
	block := blockJSON(5)
	block["transactions"] = []map[string]any{{"hash": common.HexToHash("0xaa").Hex()}}
	node.result("eth_getBlockByNumber", block)

	got, err := node.client(t).BlockByNumber(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TxCount)
	assert.Equal(t, []string{common.HexToHash("0xaa").Hex()}, got.TxHashes)
}

func TestRecentBlocksDescendingAndSkipsFailures(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_blockNumber", "0x3")
	node.handle("eth_getBlockByNumber", func(params []json.RawMessage) (any, *rpcFailure) {
		var tag string
		_ = json.Unmarshal(params[0], &tag)
		number, _ := hexutil.DecodeUint64(tag)
		if number == 2 {
			return nil, &rpcFailure{Code: -32000, Message: "boom"}
		}
		return blockJSON(number, common.HexToHash("0x01").Hex()), nil
	})
	client := node.client(t)

	blocks, err := client.RecentBlocks(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(3), blocks[0].Number)
	assert.Equal(t, uint64(1), blocks[1].Number)
	assert.Equal(t, uint64(0), blocks[2].Number)

	again, err := client.RecentBlocks(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, blocks, again)

	assert.Len(t, client.BlocksBelow(context.Background(), 3, 2), 1)
	assert.Nil(t, client.BlocksBelow(context.Background(), 3, 0))
}

func TestTransactionAndReceipt(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_getTransactionByHash", map[string]any{
		"hash":        common.HexToHash("0xbeef").Hex(),
		"blockNumber": "0x1",
		"from":        devAddress0,
		"to":          nil,
		"value":       "0x0",
		"gas":         "0x100000",
		"gasPrice":    "0x3b9aca00",
		"nonce":       "0x0",
		"input":       "0x6080604052",
	})
	node.result("eth_getTransactionReceipt", map[string]any{
		"transactionHash":   common.HexToHash("0xbeef").Hex(),
		"blockNumber":       "0x1",
		"blockHash":         common.HexToHash("0x1001").Hex(),
		"status":            "0x1",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"contractAddress":   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"logsBloom":         "0x00",
		"logs":              []any{map[string]any{}},
	})
	client := node.client(t)

	tx, err := client.TransactionByHash(context.Background(), "0xbeef")
	require.NoError(t, err)
	assert.True(t, tx.IsCreation())
	assert.Equal(t, domain.TxKindContractCreation, tx.Kind)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, tx.Input)

	receipt, err := client.Receipt(context.Background(), "0xbeef")
	require.NoError(t, err)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", receipt.ContractAddress)
	assert.Equal(t, domain.TxStatusSuccess, receipt.TxStatus())
	assert.Equal(t, 1, receipt.LogCount)
}

func TestReceiptZeroContractAddressIsEmpty(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_getTransactionReceipt", map[string]any{
		"transactionHash": common.HexToHash("0x01").Hex(),
		"status":          "0x0",
		"contractAddress": "0x0000000000000000000000000000000000000000",
	})

	receipt, err := node.client(t).Receipt(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Empty(t, receipt.ContractAddress)
	assert.Equal(t, domain.TxStatusFailed, receipt.TxStatus())
}

func TestSendValueTransferWithoutSignerMakesNoCalls(t *testing.T) {
	node := newFakeNode(t)
	client := node.client(t)

	_, err := client.SendValueTransfer(context.Background(), devAddress0, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrNoSigner)
	assert.Zero(t, node.totalCalls())
}

func TestAttachSignerRejectsMalformedKey(t *testing.T) {
	client := newFakeNode(t).client(t)

	err := client.AttachSigner("0x1234")
	var signErr *domain.SigningError
	require.ErrorAs(t, err, &signErr)
	_, ok := client.SignerAddress()
	assert.False(t, ok)
}

func TestSendValueTransferSignsLegacyTransaction(t *testing.T) {
	node := newFakeNode(t)
	node.result("eth_chainId", "0x7a69")
	node.result("eth_getTransactionCount", "0x7")
	node.result("eth_gasPrice", "0x3b9aca00")
	var (
		mu   sync.Mutex
		sent *types.Transaction
	)
	node.handle("eth_sendRawTransaction", func(params []json.RawMessage) (any, *rpcFailure) {
		mu.Lock()
		defer mu.Unlock()
		var raw hexutil.Bytes
		_ = json.Unmarshal(params[0], &raw)
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, &rpcFailure{Code: -32000, Message: err.Error()}
		}
		sent = tx
		return tx.Hash().Hex(), nil
	})
	client := node.client(t)
	require.NoError(t, client.AttachSigner(devKey0))

	address, ok := client.SignerAddress()
	require.True(t, ok)
	assert.Equal(t, devAddress0, address)

	to := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	hash, err := client.SendValueTransfer(context.Background(), to, big.NewInt(42))
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, sent)

	assert.Equal(t, sent.Hash().Hex(), hash)
	assert.Equal(t, uint64(transferGasLimit), sent.Gas())
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, big.NewInt(42), sent.Value())
	assert.Equal(t, common.HexToAddress(to), *sent.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), sent)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddress0), from)
}

func TestWaitMinedPollsUntilReceipt(t *testing.T) {
	node := newFakeNode(t)
	var polls atomic.Int32
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *rpcFailure) {
		if polls.Add(1) < 3 {
			return nil, nil
		}
		return map[string]any{"transactionHash": common.HexToHash("0x02").Hex(), "status": "0x1"}, nil
	})
	client, err := Dial(context.Background(), Config{URL: node.server.URL, ReceiptPollInterval: 1})
	require.NoError(t, err)
	defer client.Close()

	receipt, err := client.WaitMined(context.Background(), "0x02")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Status)
	assert.Equal(t, int32(3), polls.Load())
}

func TestMineFallsBackToEvmMine(t *testing.T) {
	node := newFakeNode(t)
	node.result("evm_mine", "0x0")
	client := node.client(t)

	require.NoError(t, client.Mine(context.Background(), 3))
	assert.Equal(t, 1, node.callCount("anvil_mine"))
	assert.Equal(t, 3, node.callCount("evm_mine"))
}

func TestSnapshotAndRevert(t *testing.T) {
	node := newFakeNode(t)
	node.result("evm_snapshot", "0x1")
	node.handle("evm_revert", func(params []json.RawMessage) (any, *rpcFailure) {
		var id string
		_ = json.Unmarshal(params[0], &id)
		return id == "0x1", nil
	})
	client := node.client(t)

	id, err := client.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)

	ok, err := client.Revert(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}
