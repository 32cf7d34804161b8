package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/engine"
	"github.com/mikey/mail-threat-analyzer/internal/factory"
	"github.com/mikey/mail-threat-analyzer/internal/logging"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"github.com/mikey/mail-threat-analyzer/internal/utils"
	"github.com/mikey/mail-threat-analyzer/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container for the daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}

	return container, nil
}

// provideServices registers everything downstream of *config.Config and *zap.Logger
func provideServices(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewEngineFactory,
		factory.NewCacheFactory,
		factory.NewFilterFactory,
		factory.NewTextProcessorFactory,
		factory.NewSourceFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register analysis engine
	if err := container.Provide(func(f *factory.EngineFactory) (*engine.Engine, error) {
		return f.CreateEngine()
	}); err != nil {
		return err
	}

	// Register result cache; nil when caching is disabled
	if err := container.Provide(func(f *factory.CacheFactory) (core.ResultCache, error) {
		return f.CreateResultCache()
	}); err != nil {
		return err
	}

	// Register service settings
	if err := container.Provide(func(f *factory.CacheFactory) (core.ServiceSettings, error) {
		return f.ServiceSettings()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register whitelist checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
		return whitelist.NewChecker(cfg.GetAnalysis().TrustedDomains, logger)
	}); err != nil {
		return err
	}

	// Register threat analysis service
	if err := container.Provide(func(
		eng *engine.Engine,
		cache core.ResultCache,
		logger *zap.Logger,
		checker *whitelist.Checker,
		text *utils.TextProcessor,
		settings core.ServiceSettings,
	) *core.ThreatAnalysisService {
		return core.NewThreatAnalysisService(eng, cache, logger, checker, text, settings)
	}); err != nil {
		return err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return err
	}

	// Register message source
	return container.Provide(func(f *factory.SourceFactory) (ports.MessageSource, error) {
		return f.CreateMessageSource()
	})
}
