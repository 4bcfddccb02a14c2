package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RPCURL           string
	PrivateKey       string
	AutoConnect      bool
	RPCTimeout       time.Duration
	PollInterval     time.Duration
	BlockWindow      int
	TxCap            int
	ScanWindow       uint64
	ScanBatchSize    int
	DeployTimeout    time.Duration
	HTTPAddr         string
	StoreDriver      string
	DBPath           string
	DBDSN            string
	RedisAddr        string
	CacheTTL         time.Duration
	SecretPassphrase string
	SolcPath         string
	OtelEndpoint     string
	KafkaBrokers     []string
	KafkaTopic       string
	LogLevel         string
	LogFile          string
	LogMaxSizeMB     int
	LogMaxBackups    int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	rpcURL := lookupString(source, "RPC_URL", "http://127.0.0.1:8545")
	privateKey, _ := source.Lookup("PRIVATE_KEY")

	autoConnect, err := parseBoolEnv(source, "AUTO_CONNECT", false)
	if err != nil {
		return Config{}, err
	}
	rpcTimeout, err := parseDurationEnv(source, "RPC_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDurationEnv(source, "POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	if pollInterval <= 0 {
		return Config{}, errors.New("POLL_INTERVAL must be positive")
	}
	blockWindow, err := parseUintEnv(source, "BLOCK_WINDOW", 20)
	if err != nil {
		return Config{}, err
	}
	txCap, err := parseUintEnv(source, "TX_CAP", 25)
	if err != nil {
		return Config{}, err
	}
	scanWindow, err := parseUintEnv(source, "SCAN_WINDOW", 250)
	if err != nil {
		return Config{}, err
	}
	scanBatch, err := parseUintEnv(source, "SCAN_BATCH_SIZE", 10)
	if err != nil {
		return Config{}, err
	}
	deployTimeout, err := parseDurationEnv(source, "DEPLOY_TIMEOUT", time.Minute)
	if err != nil {
		return Config{}, err
	}

	storeDriver := strings.ToLower(lookupString(source, "STORE_DRIVER", "sqlite"))
	if storeDriver != "sqlite" && storeDriver != "mysql" {
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", storeDriver)
	}
	dbDSN, _ := source.Lookup("DB_DSN")
	dbDSN = strings.TrimSpace(dbDSN)
	if storeDriver == "mysql" && dbDSN == "" {
		return Config{}, errors.New("DB_DSN is required for the mysql store")
	}

	cacheTTL, err := parseDurationEnv(source, "CACHE_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	redisAddr, _ := source.Lookup("REDIS_ADDR")

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	kafkaBrokers := parseList(source, "KAFKA_BROKERS")
	secret, _ := source.Lookup("SECRET_PASSPHRASE")

	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		RPCURL:           rpcURL,
		PrivateKey:       strings.TrimSpace(privateKey),
		AutoConnect:      autoConnect,
		RPCTimeout:       rpcTimeout,
		PollInterval:     pollInterval,
		BlockWindow:      int(blockWindow),
		TxCap:            int(txCap),
		ScanWindow:       scanWindow,
		ScanBatchSize:    int(scanBatch),
		DeployTimeout:    deployTimeout,
		HTTPAddr:         lookupString(source, "HTTP_ADDR", "127.0.0.1:8787"),
		StoreDriver:      storeDriver,
		DBPath:           lookupString(source, "DB_PATH", "data/devdash.db"),
		DBDSN:            dbDSN,
		RedisAddr:        strings.TrimSpace(redisAddr),
		CacheTTL:         cacheTTL,
		SecretPassphrase: secret,
		SolcPath:         lookupString(source, "SOLC_PATH", "solc"),
		OtelEndpoint:     strings.TrimSpace(otelEndpoint),
		KafkaBrokers:     kafkaBrokers,
		KafkaTopic:       lookupString(source, "KAFKA_TOPIC", "devdash-events"),
		LogLevel:         lookupString(source, "LOG_LEVEL", "info"),
		LogFile:          lookupString(source, "LOG_FILE", ""),
		LogMaxSizeMB:     int(logMaxSize),
		LogMaxBackups:    int(logMaxBackups),
	}, nil
}

func lookupString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseBoolEnv(source EnvSource, key string, defaultValue bool) (bool, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
