package solc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"devdash/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const sourceName = "Contract.sol"

// RunFunc executes the compiler binary with input on stdin and returns stdout.
type RunFunc func(ctx context.Context, binary string, input []byte) ([]byte, error)

type Config struct {
	Path          string
	Optimize      bool
	OptimizerRuns int
	Timeout       time.Duration
	Run           RunFunc
}

// Compiler drives solc through its standard JSON interface.
type Compiler struct {
	path     string
	optimize bool
	runs     int
	timeout  time.Duration
	run      RunFunc
}

func New(cfg Config) *Compiler {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "solc"
	}
	if cfg.OptimizerRuns <= 0 {
		cfg.OptimizerRuns = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Run == nil {
		cfg.Run = execRun
	}
	return &Compiler{
		path:     cfg.Path,
		optimize: cfg.Optimize,
		runs:     cfg.OptimizerRuns,
		timeout:  cfg.Timeout,
		run:      cfg.Run,
	}
}

type standardInput struct {
	Language string                 `json:"language"`
	Sources  map[string]inputSource `json:"sources"`
	Settings inputSettings          `json:"settings"`
}

type inputSource struct {
	Content string `json:"content"`
}

type inputSettings struct {
	Optimizer       optimizerSettings              `json:"optimizer"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type optimizerSettings struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

type standardOutput struct {
	Errors    []diagnostic                         `json:"errors"`
	Contracts map[string]map[string]outputContract `json:"contracts"`
}

type diagnostic struct {
	Severity         string `json:"severity"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type outputContract struct {
	ABI json.RawMessage `json:"abi"`
	EVM struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
	} `json:"evm"`
}

// Compile returns every contract in source ordered by name. Any error severity
// diagnostic fails the whole compile with a *domain.CompileError.
func (c *Compiler) Compile(ctx context.Context, source string) ([]domain.CompiledContract, error) {
	ctx, span := otel.Tracer("devdash/solc").Start(ctx, "solc.Compile")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	input, err := json.Marshal(c.input(source))
	if err != nil {
		return nil, err
	}
	raw, err := c.run(ctx, c.path, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("run %s: %w", c.path, err)
	}
	contracts, err := parseOutput(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("contract.count", len(contracts)))
	return contracts, nil
}

func (c *Compiler) input(source string) standardInput {
	return standardInput{
		Language: "Solidity",
		Sources:  map[string]inputSource{sourceName: {Content: source}},
		Settings: inputSettings{
			Optimizer: optimizerSettings{Enabled: c.optimize, Runs: c.runs},
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"abi", "evm.bytecode.object"}},
			},
		},
	}
}

func parseOutput(raw []byte) ([]domain.CompiledContract, error) {
	var out standardOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode compiler output: %w", err)
	}
	for _, d := range out.Errors {
		if !strings.EqualFold(d.Severity, "error") {
			continue
		}
		msg := d.FormattedMessage
		if msg == "" {
			msg = d.Message
		}
		return nil, &domain.CompileError{Message: strings.TrimSpace(msg)}
	}

	file := out.Contracts[sourceName]
	names := make([]string, 0, len(file))
	for name := range file {
		names = append(names, name)
	}
	sort.Strings(names)

	contracts := make([]domain.CompiledContract, 0, len(names))
	for _, name := range names {
		entry := file[name]
		bytecode, err := hex.DecodeString(strings.TrimPrefix(entry.EVM.Bytecode.Object, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode bytecode of %s: %w", name, err)
		}
		abiJSON := entry.ABI
		if len(abiJSON) == 0 {
			abiJSON = json.RawMessage("[]")
		}
		contracts = append(contracts, domain.CompiledContract{Name: name, ABI: abiJSON, Bytecode: bytecode})
	}
	return contracts, nil
}

func execRun(ctx context.Context, binary string, input []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "--standard-json")
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
