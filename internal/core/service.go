package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInputTooShort is returned when the trimmed input is below the configured minimum
	ErrInputTooShort = errors.New("input too short")

	// ErrInputTooLarge is returned when the input exceeds the configured maximum size
	ErrInputTooLarge = errors.New("input too large")
)

// TrustChecker decides whether a sender is on the trusted list
type TrustChecker interface {
	IsWhitelisted(from string) bool
}

// Sanitizer repairs text before it is analyzed
type Sanitizer interface {
	SanitizeUTF8(text string) string
}

// ServiceSettings holds the tunables of ThreatAnalysisService
type ServiceSettings struct {
	Threshold     int
	MinInputChars int
	MaxInputBytes int
	CacheEnabled  bool
	CacheTTL      time.Duration
}

// ThreatAnalysisService wraps the analysis engine with caching and verdicts
type ThreatAnalysisService struct {
	analyzer  Analyzer
	cache     ResultCache
	logger    *zap.Logger
	trust     TrustChecker
	sanitizer Sanitizer
	settings  ServiceSettings
}

// NewThreatAnalysisService creates a new threat analysis service
func NewThreatAnalysisService(
	analyzer Analyzer,
	cache ResultCache,
	logger *zap.Logger,
	trust TrustChecker,
	sanitizer Sanitizer,
	settings ServiceSettings,
) *ThreatAnalysisService {
	if cache == nil {
		settings.CacheEnabled = false
	}
	return &ThreatAnalysisService{
		analyzer:  analyzer,
		cache:     cache,
		logger:    logger,
		trust:     trust,
		sanitizer: sanitizer,
		settings:  settings,
	}
}

// Threshold returns the score at or above which a message is a threat
func (s *ThreatAnalysisService) Threshold() int {
	return s.settings.Threshold
}

// Analyze runs the engine over raw email source and returns a verdict
func (s *ThreatAnalysisService) Analyze(ctx context.Context, raw string) (*Assessment, error) {
	if s.settings.MaxInputBytes > 0 && len(raw) > s.settings.MaxInputBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInputTooLarge, len(raw), s.settings.MaxInputBytes)
	}
	if len([]rune(strings.TrimSpace(raw))) < s.settings.MinInputChars {
		return nil, ErrInputTooShort
	}

	if s.sanitizer != nil {
		raw = s.sanitizer.SanitizeUTF8(raw)
	}

	sum := sha256.Sum256([]byte(raw))
	assessment := &Assessment{
		ProcessingID: uuid.NewString(),
		Digest:       hex.EncodeToString(sum[:]),
		AnalyzedAt:   time.Now().UTC(),
	}

	if s.settings.CacheEnabled {
		entry, err := s.cache.Get(ctx, assessment.Digest)
		if err == nil && entry.Result != nil {
			s.logger.Debug("Cache hit for message",
				zap.String("digest", assessment.Digest),
				zap.String("processing_id", assessment.ProcessingID))
			assessment.Result = entry.Result
			assessment.Cached = true
		}
	}

	if assessment.Result == nil {
		assessment.Result = s.analyzer.Analyze(raw)

		if s.settings.CacheEnabled {
			now := time.Now()
			entry := &CacheEntry{
				Digest:    assessment.Digest,
				Result:    assessment.Result,
				LastSeen:  now,
				ExpiresAt: now.Add(s.settings.CacheTTL),
			}
			if err := s.cache.Set(ctx, entry); err != nil {
				s.logger.Error("Failed to update cache", zap.Error(err))
			}
		}
	}

	assessment.Trusted = s.isTrusted(assessment.Result)
	assessment.IsThreat = !assessment.Trusted && assessment.Result.Score >= s.settings.Threshold

	s.logger.Info("Message analyzed",
		zap.String("processing_id", assessment.ProcessingID),
		zap.Int("score", assessment.Result.Score),
		zap.String("risk_level", string(assessment.Result.RiskLevel)),
		zap.Strings("indicators", assessment.Result.IndicatorCodes()),
		zap.Bool("threat", assessment.IsThreat),
		zap.Bool("trusted", assessment.Trusted),
		zap.Bool("cached", assessment.Cached))

	return assessment, nil
}

// isTrusted requires both a trusted sender domain and a DMARC pass
func (s *ThreatAnalysisService) isTrusted(result *AnalysisResult) bool {
	if s.trust == nil || result.Summary.From == nil || !result.Signals.DMARC.Pass {
		return false
	}
	if s.trust.IsWhitelisted(*result.Summary.From) {
		s.logger.Info("Trusted sender with DMARC pass",
			zap.String("sender", *result.Summary.From),
			zap.String("action", "whitelist_bypass"))
		return true
	}
	return false
}
