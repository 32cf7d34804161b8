package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeAnalyzer struct {
	calls  int
	result *AnalysisResult
}

func (f *fakeAnalyzer) Analyze(raw string) *AnalysisResult {
	f.calls++
	return f.result
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*CacheEntry)}
}

func (c *fakeCache) Get(ctx context.Context, digest string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[digest]; ok {
		return e, nil
	}
	return nil, errors.New("not found")
}

func (c *fakeCache) Set(ctx context.Context, entry *CacheEntry) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Digest] = entry
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, digest)
	return nil
}

func (c *fakeCache) Cleanup(ctx context.Context) error {
	return nil
}

type fakeTrust map[string]bool

func (f fakeTrust) IsWhitelisted(from string) bool {
	return f[from]
}

func resultWith(score int, from string, dmarc bool) *AnalysisResult {
	return &AnalysisResult{
		Score:     score,
		RiskLevel: RiskHigh,
		Summary:   Summary{From: StringPtr(from)},
		Signals:   AuthSignals{DMARC: AuthSignal{Mechanism: MechanismDMARC, Pass: dmarc}},
	}
}

func defaultSettings() ServiceSettings {
	return ServiceSettings{
		Threshold:     60,
		MinInputChars: 10,
		MaxInputBytes: 1024,
		CacheEnabled:  true,
		CacheTTL:      time.Hour,
	}
}

func TestAnalyze_InputLimits(t *testing.T) {
	svc := NewThreatAnalysisService(&fakeAnalyzer{result: resultWith(0, "", false)}, nil, zaptest.NewLogger(t), nil, nil, defaultSettings())

	if _, err := svc.Analyze(context.Background(), "   short   "); !errors.Is(err, ErrInputTooShort) {
		t.Errorf("Expected ErrInputTooShort, got %v", err)
	}
	if _, err := svc.Analyze(context.Background(), strings.Repeat("x", 2048)); !errors.Is(err, ErrInputTooLarge) {
		t.Errorf("Expected ErrInputTooLarge, got %v", err)
	}
}

func TestAnalyze_ThreatVerdict(t *testing.T) {
	tests := []struct {
		name    string
		result  *AnalysisResult
		trust   fakeTrust
		threat  bool
		trusted bool
	}{
		{"below threshold", resultWith(59, "a@example.com", false), nil, false, false},
		{"at threshold", resultWith(60, "a@example.com", false), nil, true, false},
		{"trusted with dmarc", resultWith(90, "a@example.com", true), fakeTrust{"a@example.com": true}, false, true},
		{"trusted without dmarc", resultWith(90, "a@example.com", false), fakeTrust{"a@example.com": true}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewThreatAnalysisService(&fakeAnalyzer{result: tt.result}, nil, zaptest.NewLogger(t), tt.trust, nil, defaultSettings())

			got, err := svc.Analyze(context.Background(), "Subject: hello there\n\nbody")
			if err != nil {
				t.Fatalf("Analyze failed: %v", err)
			}
			if got.IsThreat != tt.threat || got.Trusted != tt.trusted {
				t.Errorf("Expected threat=%v trusted=%v, got threat=%v trusted=%v", tt.threat, tt.trusted, got.IsThreat, got.Trusted)
			}
			if got.ProcessingID == "" || len(got.Digest) != 64 {
				t.Errorf("Expected processing ID and SHA-256 digest, got %q %q", got.ProcessingID, got.Digest)
			}
		})
	}
}

func TestAnalyze_UsesCache(t *testing.T) {
	analyzer := &fakeAnalyzer{result: resultWith(10, "a@example.com", false)}
	cache := newFakeCache()
	svc := NewThreatAnalysisService(analyzer, cache, zaptest.NewLogger(t), nil, nil, defaultSettings())

	first, err := svc.Analyze(context.Background(), "Subject: hello there\n\nbody")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := svc.Analyze(context.Background(), "Subject: hello there\n\nbody")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analyzer.calls != 1 {
		t.Errorf("Expected analyzer to run once, ran %d times", analyzer.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("Expected only the second result to be cached, got %v %v", first.Cached, second.Cached)
	}
	if first.Digest != second.Digest || first.ProcessingID == second.ProcessingID {
		t.Error("Expected equal digests and distinct processing IDs")
	}
}

func TestAnalyze_CacheErrorsAreNotFatal(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("disk full")
	svc := NewThreatAnalysisService(&fakeAnalyzer{result: resultWith(10, "", false)}, cache, zaptest.NewLogger(t), nil, nil, defaultSettings())

	if _, err := svc.Analyze(context.Background(), "Subject: hello there\n\nbody"); err != nil {
		t.Errorf("Expected cache failure to be logged only, got %v", err)
	}
}
