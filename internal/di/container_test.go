package di

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/mikey/mail-threat-analyzer/internal/adapters/filter"
	"github.com/mikey/mail-threat-analyzer/internal/adapters/source"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
)

func TestParseFlagSet(t *testing.T) {
	flags := ParseFlagSet(flag.NewFlagSet("test", flag.ContinueOnError),
		[]string{"-mbox", "in.mbox", "-json", "-threshold", "40", "-imap-addr", "imap.example.com:993"})

	if flags.MboxFile != "in.mbox" || !flags.JSON || flags.Threshold != 40 || flags.IMAPAddress != "imap.example.com:993" {
		t.Errorf("Unexpected flags: %+v", flags)
	}
	if ParseFlagSet(flag.NewFlagSet("test", flag.ContinueOnError), []string{}).Threshold != -1 {
		t.Error("Expected threshold to default to -1")
	}
}

func TestBuildCLIContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.eml")
	flags := &CLIFlags{InputFile: path, JSON: true, Threshold: 30}

	container, err := BuildCLIContainer(flags)
	if err != nil {
		t.Fatalf("BuildCLIContainer failed: %v", err)
	}

	err = container.Invoke(func(svc *core.ThreatAnalysisService, f ports.EmailFilter, src ports.MessageSource) {
		if svc.Threshold() != 30 {
			t.Errorf("Expected threshold 30 from flags, got %d", svc.Threshold())
		}
		if _, ok := f.(*filter.CliFilter); !ok {
			t.Errorf("Expected a CLI filter, got %T", f)
		}
		if _, ok := src.(*source.FileSource); !ok {
			t.Errorf("Expected a file source, got %T", src)
		}

		a, err := svc.Analyze(context.Background(), "From: a@example.com\nTo: b@example.com\nSubject: hi\n\nhello there")
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if a.Cached {
			t.Error("Expected no cache in CLI mode")
		}
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
}

func TestBuildCLIContainer_MboxSource(t *testing.T) {
	container, err := BuildCLIContainer(&CLIFlags{MboxFile: filepath.Join(t.TempDir(), "missing.mbox"), Threshold: -1})
	if err != nil {
		t.Fatalf("BuildCLIContainer failed: %v", err)
	}

	err = container.Invoke(func(src ports.MessageSource) {})
	if err == nil {
		t.Error("Expected opening a missing mbox to fail")
	}
}
