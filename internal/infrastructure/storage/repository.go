package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devdash/internal/infrastructure/mysql"
	"devdash/internal/infrastructure/sqlite"
)

// Store is the local store used by the dashboard and the devtools CLI.
type Store interface {
	mysql.Store
	io.Closer
}

type Config struct {
	// Driver is "sqlite" or "mysql".
	Driver    string
	Path      string
	DSN       string
	RedisAddr string
	CacheTTL  time.Duration
}

// Open returns the configured store. The mysql store is fronted by Redis when
// RedisAddr is set; an unreachable Redis only disables the cache.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		return openSQLite(cfg.Path)
	case "mysql":
		return openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openSQLite(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	repo, err := sqlite.NewRepository(path)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func openMySQL(cfg Config) (Store, error) {
	base, err := mysql.NewRepository(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cached, err := mysql.NewCachedRepository(base, mysql.CacheConfig{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
	if err != nil {
		slog.Warn("redis cache disabled", "addr", cfg.RedisAddr, "error", err)
		return base, nil
	}
	return cached, nil
}
