package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devdash/internal/application"
	"devdash/internal/config"
	"devdash/internal/infrastructure/ethrpc"
	"devdash/internal/infrastructure/logging"
	"devdash/internal/infrastructure/solc"
	"devdash/internal/infrastructure/storage"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	cfg        config.Config
	rpcURL     string
	privateKey string
)

var rootCmd = &cobra.Command{
	Use:           "devtools",
	Short:         "Command line companion to the devdash dashboard",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = loaded
		if rpcURL == "" {
			rpcURL = cfg.RPCURL
		}
		if privateKey == "" {
			privateKey = cfg.PrivateKey
		}
		_, err = logging.InitTo(logging.Config{Service: "devtools", Level: cfg.LogLevel}, os.Stderr)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "node endpoint (default $RPC_URL)")
	rootCmd.PersistentFlags().StringVar(&privateKey, "key", "", "hex signing key (default $PRIVATE_KEY)")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func newSession() (*application.Session, error) {
	return application.NewSession(ethrpc.Dialer(ethrpc.Config{Timeout: cfg.RPCTimeout}), nil, nil, nil, application.SessionConfig{
		PollInterval: time.Hour,
		BlockWindow:  1,
		TxCap:        1,
	})
}

// connect opens a session to --rpc with --key attached when given. The caller
// closes the session.
func connect(ctx context.Context) (*application.Session, error) {
	session, err := newSession()
	if err != nil {
		return nil, err
	}
	snap, err := session.Connect(ctx, rpcURL, privateKey)
	if err != nil {
		session.Close()
		return nil, err
	}
	if snap.SignerWarning != "" {
		slog.Warn("connected read-only", "reason", snap.SignerWarning)
	}
	return session, nil
}

func openStore() (storage.Store, error) {
	return storage.Open(storage.Config{
		Driver:    cfg.StoreDriver,
		Path:      cfg.DBPath,
		DSN:       cfg.DBDSN,
		RedisAddr: cfg.RedisAddr,
		CacheTTL:  cfg.CacheTTL,
	})
}

func newCompiler() *solc.Compiler {
	return solc.New(solc.Config{Path: cfg.SolcPath})
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
