package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"go.uber.org/zap/zaptest"
)

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zaptest.NewLogger(t), time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteCache failed: %v", err)
	}
	defer c.Stop()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := c.Set(ctx, sampleEntry("abc", time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Replacing an entry must not fail on the primary key
	if err := c.Set(ctx, sampleEntry("abc", time.Hour)); err != nil {
		t.Fatalf("Second Set failed: %v", err)
	}

	got, err := c.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Result.Score != 45 || got.Result.RiskLevel != core.RiskMedium {
		t.Errorf("Unexpected cached result: %+v", got.Result)
	}
	if len(got.Result.Indicators) != 1 || got.Result.Indicators[0].Severity != core.SeverityHigh {
		t.Errorf("Expected indicator severity to survive the round trip, got %+v", got.Result.Indicators)
	}

	if err := c.Set(ctx, sampleEntry("stale", -time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := c.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired entry to be hidden, got %v", err)
	}
	if err := c.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if err := c.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
