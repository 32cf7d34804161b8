package factory

import (
	"github.com/mikey/mail-threat-analyzer/internal/adapters/source"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

// SourceFactory creates message sources for the command-line analyzer
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMessageSource picks IMAP, mbox or a single file (stdin by default)
// from the "input.*" and "imap.*" settings
func (f *SourceFactory) CreateMessageSource() (ports.MessageSource, error) {
	if f.cfg.GetString("imap.address") != "" {
		return source.NewIMAPSource(f.cfg.GetIMAP(), f.logger)
	}
	if path := f.cfg.GetString("input.mbox"); path != "" {
		return source.NewMboxSource(path, f.logger)
	}
	return source.NewFileSource(f.cfg.GetString("input.file")), nil
}
