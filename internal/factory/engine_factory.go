package factory

import (
	"fmt"

	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/engine"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
	"go.uber.org/zap"
)

// EngineFactory creates the analysis engine from configuration
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateEngine loads the policy tables and builds an engine with the configured limits
func (f *EngineFactory) CreateEngine() (*engine.Engine, error) {
	engCfg := f.cfg.GetEngine()

	pol := policy.Default()
	if engCfg.PolicyFile != "" {
		loaded, err := policy.Load(engCfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		pol = loaded
		f.logger.Info("Loaded policy file", zap.String("path", engCfg.PolicyFile))
	}

	limits := engine.DefaultLimits()
	if engCfg.MaxHeaders > 0 {
		limits.MaxHeaders = engCfg.MaxHeaders
	}
	if engCfg.MaxParts > 0 {
		limits.MaxParts = engCfg.MaxParts
	}
	if engCfg.MaxDepth > 0 {
		limits.MaxDepth = engCfg.MaxDepth
	}
	if engCfg.MaxLinks > 0 {
		limits.MaxLinks = engCfg.MaxLinks
	}

	f.logger.Debug("Analysis engine configured",
		zap.Int("max_headers", limits.MaxHeaders),
		zap.Int("max_parts", limits.MaxParts),
		zap.Int("max_depth", limits.MaxDepth),
		zap.Int("max_links", limits.MaxLinks),
		zap.Int("brands", len(pol.Brands)))

	return engine.New(pol, engine.WithLimits(limits)), nil
}
