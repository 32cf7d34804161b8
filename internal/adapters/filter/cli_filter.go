package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

// CliFilter implements a command-line front end for threat analysis
type CliFilter struct {
	service  ports.ThreatAnalyzer
	logger   *zap.Logger
	out      io.Writer
	jsonMode bool
	verbose  bool
}

// NewCliFilter creates a new CLI filter writing to stdout
func NewCliFilter(service ports.ThreatAnalyzer, logger *zap.Logger, jsonMode, verbose bool) *CliFilter {
	return &CliFilter{
		service:  service,
		logger:   logger,
		out:      os.Stdout,
		jsonMode: jsonMode,
		verbose:  verbose,
	}
}

// SetOutput redirects the report output
func (f *CliFilter) SetOutput(w io.Writer) {
	f.out = w
}

// ProcessEmail analyzes raw email source and prints the report
func (f *CliFilter) ProcessEmail(ctx context.Context, raw string) (*core.Assessment, error) {
	start := time.Now()
	assessment, err := f.service.Analyze(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		return nil, err
	}

	if f.jsonMode {
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assessment); err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		return assessment, nil
	}

	f.printReport(assessment, time.Since(start))
	return assessment, nil
}

func (f *CliFilter) printReport(a *core.Assessment, took time.Duration) {
	res := a.Result

	fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
	fmt.Fprintf(f.out, "From: %s\n", orNone(res.Summary.From))
	fmt.Fprintf(f.out, "To: %s\n", orNone(res.Summary.To))
	fmt.Fprintf(f.out, "Subject: %s\n", orNone(res.Summary.Subject))

	fmt.Fprintf(f.out, "\n=== Authentication ===\n")
	for _, m := range core.Mechanisms {
		sig := res.Signals.Get(m)
		fmt.Fprintf(f.out, "%-6s %-5t %s\n", m, sig.Pass, sig.Result())
	}

	fmt.Fprintf(f.out, "\n=== Indicators ===\n")
	if len(res.Indicators) == 0 {
		fmt.Fprintf(f.out, "(none)\n")
	}
	for _, ind := range res.Indicators {
		fmt.Fprintf(f.out, "[%s] %s: %s\n", ind.Severity, ind.Code, ind.Message)
	}

	if len(res.Links) > 0 {
		fmt.Fprintf(f.out, "\n=== Links ===\n")
		for _, l := range res.Links {
			if f.verbose && l.Reason != "" {
				fmt.Fprintf(f.out, "%-10s %s (%s)\n", l.Classification, l.URL, l.Reason)
				continue
			}
			fmt.Fprintf(f.out, "%-10s %s\n", l.Classification, l.URL)
		}
	}

	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Score: %d/100\n", res.Score)
	fmt.Fprintf(f.out, "Risk level: %s\n", res.RiskLevel)
	fmt.Fprintf(f.out, "Threat: %t\n", a.IsThreat)
	if a.Trusted {
		fmt.Fprintf(f.out, "Trusted sender: true\n")
	}
	if f.verbose {
		fmt.Fprintf(f.out, "Processing ID: %s\n", a.ProcessingID)
		fmt.Fprintf(f.out, "Digest: %s\n", a.Digest)
		fmt.Fprintf(f.out, "Cached: %t\n", a.Cached)
		fmt.Fprintf(f.out, "Processing time: %v\n", took)
	}
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

func orNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}
