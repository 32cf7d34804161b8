package core

import (
	"context"
)

// Analyzer turns raw email source into an analysis result. Implementations
// must be deterministic and must never return nil.
type Analyzer interface {
	Analyze(raw string) *AnalysisResult
}

// ResultCache defines the interface for caching analysis results
type ResultCache interface {
	// Get retrieves a cached entry by input digest
	Get(ctx context.Context, digest string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, digest string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}
