package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"go.uber.org/zap"
)

// Stopper is implemented by caches that own background work or connections
type Stopper interface {
	Stop()
}

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// runCleanup periodically removes expired entries until stopCh is closed
func runCleanup(c cleaner, freq time.Duration, logger *zap.Logger, stopCh <-chan struct{}) {
	if freq <= 0 {
		return
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}

func encodeResult(result *core.AnalysisResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*core.AnalysisResult, error) {
	var result core.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis result: %w", err)
	}
	return &result, nil
}
