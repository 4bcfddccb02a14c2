package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"devdash/internal/application"
	"devdash/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	verificationCacheVersionKey = "devdash:verifications:version"
	verificationCacheKeyPrefix  = "devdash:verifications:v"
	defaultCacheTTL             = time.Hour
)

// Store is the full local store surface; both the sqlite and mysql repositories satisfy it.
type Store interface {
	application.VerificationStore
	application.DeploymentStore
	application.SettingsStore
}

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedRepository fronts verification reads with Redis. Any write bumps the
// cache version so stale entries are never read again.
type CachedRepository struct {
	Store
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(base Store, cfg CacheConfig) (*CachedRepository, error) {
	if base == nil {
		return nil, errors.New("base repository is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRepository{Store: base}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &CachedRepository{Store: base, cache: client, ttl: cfg.TTL}, nil
}

func (r *CachedRepository) PutVerification(ctx context.Context, address string, v domain.Verification) error {
	if err := r.Store.PutVerification(ctx, address, v); err != nil {
		return err
	}
	r.invalidateVerificationCache(ctx)
	return nil
}

func (r *CachedRepository) GetVerification(ctx context.Context, address string) (domain.Verification, bool, error) {
	if r.cache == nil {
		return r.Store.GetVerification(ctx, address)
	}
	version, ok := r.cacheVersion(ctx)
	if !ok {
		return r.Store.GetVerification(ctx, address)
	}
	key := verificationCacheKey(version, address)
	if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
		var v domain.Verification
		if err := json.Unmarshal([]byte(cached), &v); err == nil {
			return v, true, nil
		}
	}

	v, found, err := r.Store.GetVerification(ctx, address)
	if err != nil || !found {
		return v, found, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return v, true, nil
	}
	_ = r.cache.Set(ctx, key, payload, r.ttl).Err()
	return v, true, nil
}

func (r *CachedRepository) Close() error {
	var errs []error
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if closer, ok := r.Store.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

func (r *CachedRepository) cacheVersion(ctx context.Context) (string, bool) {
	version, err := r.cache.Get(ctx, verificationCacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (r *CachedRepository) invalidateVerificationCache(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Incr(ctx, verificationCacheVersionKey).Err()
}

func verificationCacheKey(version, address string) string {
	var b strings.Builder
	b.Grow(len(verificationCacheKeyPrefix) + len(version) + 50)
	b.WriteString(verificationCacheKeyPrefix)
	b.WriteString(version)
	b.WriteString(":addr=")
	b.WriteString(domain.NormalizeAddress(address))
	return b.String()
}
