package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"devdash/internal/domain"
	"devdash/internal/units"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const deploymentListLimit = 50

// Compiler turns Solidity source into contracts. A rejected source must fail
// with *domain.CompileError carrying the first compiler error.
type Compiler interface {
	Compile(ctx context.Context, source string) ([]domain.CompiledContract, error)
}

type ABIParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ABIFunction struct {
	Name      string     `json:"name"`
	Signature string     `json:"signature"`
	Selector  string     `json:"selector"`
	Inputs    []ABIParam `json:"inputs"`
	Outputs   []ABIParam `json:"outputs"`
	ReadOnly  bool       `json:"read_only"`
	Payable   bool       `json:"payable"`
}

type CompileResult struct {
	Contract    domain.CompiledContract `json:"contract"`
	Constructor []ABIParam              `json:"constructor"`
	Functions   []ABIFunction           `json:"functions"`
}

type CallRequest struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
	Method  string          `json:"method"`
	Args    []string        `json:"args"`
	// Value is in ether and only used for payable methods.
	Value string `json:"value"`
}

type CallResult struct {
	Method  string   `json:"method"`
	Outputs []string `json:"outputs,omitempty"`
	TxHash  string   `json:"tx_hash,omitempty"`
	Status  string   `json:"status,omitempty"`
	GasUsed uint64   `json:"gas_used,omitempty"`
}

// Playground compiles, deploys and calls contracts on the connected node.
type Playground struct {
	compiler    Compiler
	session     *Session
	deployments DeploymentStore
}

func NewPlayground(compiler Compiler, session *Session, deployments DeploymentStore) (*Playground, error) {
	if compiler == nil || session == nil {
		return nil, errors.New("playground dependencies must not be nil")
	}
	return &Playground{compiler: compiler, session: session, deployments: deployments}, nil
}

// Compile returns the first contract of source along with its constructor
// and function signatures.
func (p *Playground) Compile(ctx context.Context, source string) (CompileResult, error) {
	if strings.TrimSpace(source) == "" {
		return CompileResult{}, &domain.CompileError{Message: "source is empty"}
	}
	contracts, err := p.compiler.Compile(ctx, source)
	if err != nil {
		return CompileResult{}, err
	}
	if len(contracts) == 0 {
		return CompileResult{}, &domain.CompileError{Message: "No contracts found"}
	}
	contract := contracts[0]
	parsed, err := ParseABI(contract.ABI)
	if err != nil {
		return CompileResult{}, &domain.CompileError{Message: fmt.Sprintf("compiler returned an unreadable abi: %v", err)}
	}
	return CompileResult{
		Contract:    contract,
		Constructor: describeParams(parsed.Constructor.Inputs),
		Functions:   describeFunctions(parsed),
	}, nil
}

// Deploy sends the contract with constructor args given as strings and waits
// for it to be mined.
func (p *Playground) Deploy(ctx context.Context, contract domain.CompiledContract, args []string) (domain.Deployment, error) {
	client, err := p.session.Client()
	if err != nil {
		return domain.Deployment{}, err
	}
	if _, ok := client.SignerAddress(); !ok {
		return domain.Deployment{}, domain.ErrNoSigner
	}
	if len(contract.Bytecode) == 0 {
		return domain.Deployment{}, errors.New("contract has no bytecode")
	}
	parsed, err := ParseABI(contract.ABI)
	if err != nil {
		return domain.Deployment{}, fmt.Errorf("parse abi: %w", err)
	}
	values, err := ConvertArgs(parsed.Constructor.Inputs, args)
	if err != nil {
		return domain.Deployment{}, err
	}
	address, txHash, err := client.DeployContract(ctx, parsed, contract.Bytecode, values...)
	if err != nil {
		return domain.Deployment{}, fmt.Errorf("deploy %s: %w", contract.Name, err)
	}
	deployment := domain.Deployment{
		Name:       contract.Name,
		Address:    domain.NormalizeAddress(address),
		TxHash:     txHash,
		ABI:        contract.ABI,
		DeployedAt: time.Now().UTC(),
	}
	if p.deployments != nil {
		if err := p.deployments.AddDeployment(ctx, deployment); err != nil {
			slog.Warn("save deployment", "address", deployment.Address, "error", err)
		}
	}
	slog.Info("contract deployed", "name", contract.Name, "address", deployment.Address, "tx", txHash)
	p.session.refreshAfterAction(ctx)
	return deployment, nil
}

// Deployments lists playground deployments, newest first.
func (p *Playground) Deployments(ctx context.Context) ([]domain.Deployment, error) {
	if p.deployments == nil {
		return nil, nil
	}
	return p.deployments.ListDeployments(ctx, deploymentListLimit)
}

// Call runs view and pure methods through eth_call and sends a transaction for
// everything else.
func (p *Playground) Call(ctx context.Context, req CallRequest) (CallResult, error) {
	client, err := p.session.Client()
	if err != nil {
		return CallResult{}, err
	}
	parsed, err := ParseABI(req.ABI)
	if err != nil {
		return CallResult{}, fmt.Errorf("parse abi: %w", err)
	}
	method, ok := parsed.Methods[req.Method]
	if !ok {
		return CallResult{}, fmt.Errorf("method %q: %w", req.Method, domain.ErrNotFound)
	}
	values, err := ConvertArgs(method.Inputs, req.Args)
	if err != nil {
		return CallResult{}, err
	}
	if method.IsConstant() {
		return p.read(ctx, client, req.Address, parsed, method, values)
	}
	return p.transact(ctx, client, req, parsed, method, values)
}

func (p *Playground) read(ctx context.Context, client NodeClient, address string, parsed abi.ABI, method abi.Method, values []any) (CallResult, error) {
	outputs, err := client.CallContract(ctx, address, parsed, method.Name, values...)
	if err != nil {
		return CallResult{}, fmt.Errorf("call %s: %w", method.Name, err)
	}
	result := CallResult{Method: method.Sig, Outputs: make([]string, len(outputs))}
	for i, output := range outputs {
		result.Outputs[i] = FormatValue(output)
	}
	return result, nil
}

func (p *Playground) transact(ctx context.Context, client NodeClient, req CallRequest, parsed abi.ABI, method abi.Method, values []any) (CallResult, error) {
	if _, ok := client.SignerAddress(); !ok {
		return CallResult{}, domain.ErrNoSigner
	}
	value := new(big.Int)
	if strings.TrimSpace(req.Value) != "" {
		parsedValue, err := units.ParseEther(req.Value)
		if err != nil {
			return CallResult{}, fmt.Errorf("value: %w", err)
		}
		value = parsedValue
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return CallResult{}, fmt.Errorf("method %s is not payable", method.Name)
	}
	receipt, err := client.TransactContract(ctx, req.Address, parsed, method.Name, value, values...)
	if err != nil {
		return CallResult{}, fmt.Errorf("transact %s: %w", method.Name, err)
	}
	p.session.refreshAfterAction(ctx)
	return CallResult{
		Method:  method.Sig,
		TxHash:  receipt.TxHash,
		Status:  string(receipt.TxStatus()),
		GasUsed: receipt.GasUsed,
	}, nil
}

func describeParams(args abi.Arguments) []ABIParam {
	params := make([]ABIParam, len(args))
	for i, arg := range args {
		params[i] = ABIParam{Name: arg.Name, Type: arg.Type.String()}
	}
	return params
}

// describeFunctions lists methods in name order.
func describeFunctions(parsed abi.ABI) []ABIFunction {
	names := make([]string, 0, len(parsed.Methods))
	for name := range parsed.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	functions := make([]ABIFunction, 0, len(names))
	for _, name := range names {
		method := parsed.Methods[name]
		functions = append(functions, ABIFunction{
			Name:      method.Name,
			Signature: method.Sig,
			Selector:  hexutil.Encode(method.ID),
			Inputs:    describeParams(method.Inputs),
			Outputs:   describeParams(method.Outputs),
			ReadOnly:  method.IsConstant(),
			Payable:   method.IsPayable(),
		})
	}
	return functions
}
