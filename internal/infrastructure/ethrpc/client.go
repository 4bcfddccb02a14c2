package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultCallTimeout = 10 * time.Second

type Config struct {
	URL     string
	Timeout time.Duration
	// ReceiptPollInterval controls how often mined receipts are polled for.
	ReceiptPollInterval time.Duration
	HTTPClient          *http.Client
}

// Client is a JSON-RPC handle to a development node.
type Client struct {
	url          string
	rpc          *rpc.Client
	timeout      time.Duration
	pollInterval time.Duration

	mu      sync.RWMutex
	chainID *big.Int
	signer  *Signer
}

// Dial opens a client without touching the network.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 250 * time.Millisecond
	}
	var opts []rpc.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(cfg.HTTPClient))
	}
	raw, err := rpc.DialOptions(ctx, cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		url:          cfg.URL,
		rpc:          raw,
		timeout:      cfg.Timeout,
		pollInterval: cfg.ReceiptPollInterval,
	}, nil
}

// Connect dials the endpoint and runs the liveness check. Any failure is a
// *domain.ConnectionError.
func Connect(ctx context.Context, cfg Config) (*Client, domain.NetworkInfo, error) {
	client, err := Dial(ctx, cfg)
	if err != nil {
		return nil, domain.NetworkInfo{}, &domain.ConnectionError{Endpoint: cfg.URL, Err: err}
	}
	info, err := client.NetworkInfo(ctx)
	if err != nil {
		client.Close()
		return nil, domain.NetworkInfo{}, &domain.ConnectionError{Endpoint: cfg.URL, Err: err}
	}
	return client, info, nil
}

// Dialer adapts Connect to a session dial func. cfg.URL is replaced by the
// dialled endpoint.
func Dialer(cfg Config) application.DialFunc {
	return func(ctx context.Context, endpoint string) (application.NodeClient, domain.NetworkInfo, error) {
		dialCfg := cfg
		dialCfg.URL = endpoint
		client, info, err := Connect(ctx, dialCfg)
		if err != nil {
			return nil, domain.NetworkInfo{}, err
		}
		return client, info, nil
	}
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result hexutil.Big
	if err := c.call(ctx, &result, "eth_chainId"); err != nil {
		return 0, err
	}
	id := result.ToInt()
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id.Uint64(), nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, &result, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

// NetworkInfo fetches chain id, latest block and gas price. A failing gas price
// query is reported as zero since some dev nodes do not implement it.
func (c *Client) NetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return domain.NetworkInfo{}, fmt.Errorf("chain id: %w", err)
	}
	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return domain.NetworkInfo{}, fmt.Errorf("block number: %w", err)
	}
	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		gasPrice = new(big.Int)
	}
	return domain.NetworkInfo{
		ChainID:     chainID,
		Name:        domain.NetworkName(chainID),
		GasPrice:    gasPrice,
		LatestBlock: latest,
	}, nil
}

// Accounts lists the node managed unlocked addresses in node order.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	var result []common.Address
	if err := c.call(ctx, &result, "eth_accounts"); err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(result))
	for _, address := range result {
		addresses = append(addresses, strings.ToLower(address.Hex()))
	}
	return addresses, nil
}

func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	var result hexutil.Big
	if err := c.call(ctx, &result, "eth_getBalance", common.HexToAddress(address), "latest"); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

func (c *Client) Nonce(ctx context.Context, address string) (uint64, error) {
	return c.nonceAt(ctx, address, "latest")
}

func (c *Client) nonceAt(ctx context.Context, address string, tag string) (uint64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("invalid address %q", address)
	}
	var result hexutil.Uint64
	if err := c.call(ctx, &result, "eth_getTransactionCount", common.HexToAddress(address), tag); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (domain.Block, error) {
	var result *rpcBlock
	if err := c.call(ctx, &result, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return domain.Block{}, err
	}
	if result == nil {
		return domain.Block{}, domain.ErrNotFound
	}
	return result.toDomain()
}

// RecentBlocks returns up to count blocks ending at the latest one, newest
// first. A block that cannot be fetched is logged and skipped.
func (c *Client) RecentBlocks(ctx context.Context, count int) ([]domain.Block, error) {
	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return c.BlocksBelow(ctx, latest, count), nil
}

// BlocksBelow fetches count blocks from head downwards, stopping at genesis.
func (c *Client) BlocksBelow(ctx context.Context, head uint64, count int) []domain.Block {
	if count <= 0 {
		return nil
	}
	blocks := make([]domain.Block, 0, count)
	for i := 0; i < count; i++ {
		if uint64(i) > head {
			break
		}
		number := head - uint64(i)
		block, err := c.BlockByNumber(ctx, number)
		if err != nil {
			slog.Warn("skip block", "error", &domain.FetchError{Kind: "block", Key: strconv.FormatUint(number, 10), Err: err})
			continue
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func (c *Client) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	var result *rpcTransaction
	if err := c.call(ctx, &result, "eth_getTransactionByHash", common.HexToHash(hash)); err != nil {
		return domain.Transaction{}, err
	}
	if result == nil {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return result.toDomain(), nil
}

func (c *Client) Receipt(ctx context.Context, hash string) (domain.Receipt, error) {
	var result *rpcReceipt
	if err := c.call(ctx, &result, "eth_getTransactionReceipt", common.HexToHash(hash)); err != nil {
		return domain.Receipt{}, err
	}
	if result == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return result.toDomain(), nil
}

// Code returns the runtime bytecode at address. An empty result means the
// address is not a contract.
func (c *Client) Code(ctx context.Context, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	var result hexutil.Bytes
	if err := c.call(ctx, &result, "eth_getCode", common.HexToAddress(address), "latest"); err != nil {
		return nil, err
	}
	return []byte(result), nil
}

func (c *Client) call(ctx context.Context, result any, method string, params ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := otel.Tracer("devdash/ethrpc").Start(ctx, "rpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "jsonrpc"), attribute.String("rpc.method", method)),
	)
	defer span.End()

	if err := c.rpc.CallContext(ctx, result, method, params...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) cachedChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	id := c.chainID
	c.mu.RUnlock()
	if id != nil {
		return id, nil
	}
	if _, err := c.ChainID(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainID, nil
}
