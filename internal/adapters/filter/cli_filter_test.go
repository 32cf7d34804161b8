package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestCliFilter_Report(t *testing.T) {
	f := NewCliFilter(newTestService(t), zaptest.NewLogger(t), false, true)
	var buf bytes.Buffer
	f.SetOutput(&buf)

	a, err := f.ProcessEmail(context.Background(), phishMessage)
	if err != nil {
		t.Fatalf("ProcessEmail failed: %v", err)
	}
	if !a.IsThreat {
		t.Error("Expected a threat verdict")
	}

	out := buf.String()
	for _, want := range []string{"Subject: Urgent: verify your account", "[critical] DISPLAY_NAME_SPOOF", "mismatch", "Threat: true", "Processing ID: "} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCliFilter_JSON(t *testing.T) {
	f := NewCliFilter(newTestService(t), zaptest.NewLogger(t), true, false)
	var buf bytes.Buffer
	f.SetOutput(&buf)

	if _, err := f.ProcessEmail(context.Background(), plainMessage); err != nil {
		t.Fatalf("ProcessEmail failed: %v", err)
	}

	var got struct {
		IsThreat bool `json:"isThreat"`
		Result   struct {
			Summary struct {
				Subject *string `json:"subject"`
			} `json:"summary"`
		} `json:"result"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Expected JSON output, got %v", err)
	}
	if got.IsThreat || got.Result.Summary.Subject == nil || *got.Result.Summary.Subject != "Lunch" {
		t.Errorf("Unexpected JSON report: %s", buf.String())
	}
}

func TestCliFilter_RejectsShortInput(t *testing.T) {
	f := NewCliFilter(newTestService(t), zaptest.NewLogger(t), false, false)
	f.SetOutput(&bytes.Buffer{})

	if _, err := f.ProcessEmail(context.Background(), "hi"); err == nil {
		t.Error("Expected an error for short input")
	}
}
