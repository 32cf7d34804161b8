package ports

import (
	"context"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// ThreatAnalyzer produces a verdict for raw email source
type ThreatAnalyzer interface {
	Analyze(ctx context.Context, raw string) (*core.Assessment, error)
}

// EmailFilter defines the interface for email filtering front ends
type EmailFilter interface {
	// ProcessEmail analyzes raw email source and returns the assessment
	ProcessEmail(ctx context.Context, raw string) (*core.Assessment, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
