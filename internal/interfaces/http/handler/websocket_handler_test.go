package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestFrom(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{" https://dash.example.com/ ", "", "http://localhost:8080"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://dash.example.com", true},
		{"https://dash.example.com/some/path", true},
		{"http://localhost:8080", true},
		{"http://dash.example.com", false},
		{"https://evil.example.com", false},
		{"", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.check(requestFrom(tt.origin)))
		})
	}
}

func TestOriginPolicy_EmptyDeniesAndWildcardAllows(t *testing.T) {
	assert.False(t, newOriginPolicy(nil).check(requestFrom("https://dash.example.com")))

	wildcard := newOriginPolicy([]string{"*"})
	assert.True(t, wildcard.check(requestFrom("https://anything.example.org")))
	assert.False(t, wildcard.check(requestFrom("")))
}
