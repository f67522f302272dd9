package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/echochamber/internal/logging"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard allows any origin", []string{"*"}, "http://anywhere.example", true},
		{"missing origin header", []string{"http://localhost:3000"}, "", true},
		{"exact match", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"case insensitive", []string{"http://LocalHost:3000"}, "HTTP://localhost:3000", true},
		{"port mismatch", []string{"http://localhost:3000"}, "http://localhost:8080", false},
		{"scheme mismatch", []string{"http://localhost:3000"}, "https://localhost:3000", false},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"malformed origin", []string{"http://localhost:3000"}, "not-a-url", false},
		{"empty allow list", nil, "http://localhost:3000", false},
		{"invalid entries ignored", []string{"bogus", " http://ok.example "}, "http://ok.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, logging.Discard())
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(req))
		})
	}
}

func TestNormalizeOrigin(t *testing.T) {
	got, ok := normalizeOrigin("HTTPS://Example.COM:443")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com:443", got)

	_, ok = normalizeOrigin("example.com")
	assert.False(t, ok)
}
