package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stopper is implemented by caches that hold background tasks or connections
type Stopper interface {
	Stop()
}

// CacheFactory creates verdict caches based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateVerdictCache creates the configured verdict cache. It returns nil when caching is disabled.
func (f *CacheFactory) CreateVerdictCache(ctx context.Context) (core.VerdictCache, error) {
	cc := f.cfg.GetCache()
	if !cc.Enabled {
		f.logger.Info("Verdict cache disabled")
		return nil, nil
	}

	f.logger.Info("Creating verdict cache", zap.String("type", cc.Type), zap.Duration("ttl", cc.TTL))

	switch cc.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, cc.CleanupFrequency), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return cache.NewSQLiteCache(cc.SQLitePath, f.logger, cc.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(cc.MySQLDSN, f.logger, cc.CleanupFrequency)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cc.RedisAddress,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
		})
		c, err := cache.NewRedisCache(ctx, client, cc.RedisPrefix, f.logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cc.Type)
	}
}
