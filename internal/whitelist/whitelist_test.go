package whitelist

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestIsWhitelisted(t *testing.T) {
	c := NewChecker([]string{" Example.COM ", "", "partner.org."}, zaptest.NewLogger(t))

	tests := []struct {
		from string
		want bool
	}{
		{"alice@example.com", true},
		{"Alice <alice@EXAMPLE.com>", true},
		{"news@mail.example.com", true},
		{"bob@partner.org", true},
		{"eve@notexample.com", false},
		{"eve@example.com.evil.net", false},
		{"not an address", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsWhitelisted(tt.from); got != tt.want {
			t.Errorf("IsWhitelisted(%q) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestIsWhitelisted_Empty(t *testing.T) {
	if NewChecker(nil, nil).IsWhitelisted("alice@example.com") {
		t.Error("Expected an empty whitelist to trust nobody")
	}
}
