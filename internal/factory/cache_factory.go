package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/adapters/cache"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"go.uber.org/zap"
)

// CacheFactory creates result caches based on configuration
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

// CreateResultCache creates a result cache based on the configuration. It
// returns a nil cache when caching is disabled or the type is "none".
func (f *CacheFactory) CreateResultCache() (core.ResultCache, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return nil, err
	}
	if !cacheCfg.Enabled || cacheCfg.Type == "none" {
		f.logger.Info("Result cache disabled")
		return nil, nil
	}

	switch cacheCfg.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, cacheCfg.CleanupFrequency), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cacheCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return cache.NewSQLiteCache(cacheCfg.SQLitePath, f.logger, cacheCfg.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(cacheCfg.MySQLDSN, f.logger, cacheCfg.CleanupFrequency)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cache.NewRedisCache(ctx, cacheCfg.RedisAddr, cacheCfg.RedisPassword, cacheCfg.RedisDB, f.logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}

// ServiceSettings assembles the analysis service settings
func (f *CacheFactory) ServiceSettings() (core.ServiceSettings, error) {
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return core.ServiceSettings{}, err
	}
	analysis := f.cfg.GetAnalysis()

	return core.ServiceSettings{
		Threshold:     analysis.Threshold,
		MinInputChars: analysis.MinInputChars,
		MaxInputBytes: analysis.MaxInputBytes,
		CacheEnabled:  cacheCfg.Enabled && cacheCfg.Type != "none",
		CacheTTL:      cacheCfg.TTL,
	}, nil
}
