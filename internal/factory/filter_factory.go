package factory

import (
	"fmt"

	"github.com/mikey/mail-threat-analyzer/internal/adapters/filter"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"github.com/mikey/mail-threat-analyzer/internal/utils"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.ThreatAnalysisService
	text    *utils.TextProcessor
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.ThreatAnalysisService, text *utils.TextProcessor) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
		text:    text,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "http":
		httpCfg := f.cfg.GetHTTP()
		return filter.NewHTTPFilter(f.service, f.logger, httpCfg.ListenAddress, httpCfg.MaxBodyBytes), nil
	case "postfix":
		return filter.NewPostfixFilter(f.service, f.logger, f.text, f.cfg.GetPostfix()), nil
	case "cli":
		return filter.NewCliFilter(f.service, f.logger, f.cfg.GetBool("cli.json"), f.cfg.GetBool("cli.verbose")), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}
