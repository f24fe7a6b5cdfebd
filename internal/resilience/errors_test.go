package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped", fmt.Errorf("places: %w", NewTransientError(errors.New("bad gateway"), 502)), true},
		{"rate limit", NewRateLimitError(errors.New("quota"), ""), true},
		{"regular", errors.New("invalid input: missing field"), false},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"broken pipe text", errors.New("broken pipe"), true},
		{"tls text", errors.New("TLS handshake timeout"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)
	assert.True(t, errors.Is(te, inner))
	assert.Equal(t, 500, te.StatusCode)
	assert.Equal(t, "root cause", te.Error())
}

func TestParseRetryHint(t *testing.T) {
	tests := []struct {
		msg    string
		want   time.Duration
		wantOK bool
	}{
		{"retry in 5s", 5 * time.Second, true},
		{"[429 Too Many Requests] Please retry in 41.8s.", 42 * time.Second, true},
		{"Quota exceeded. Retry in 12 s", 12 * time.Second, true},
		{"try again later", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := ParseRetryHint(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d, ok := ParseRetryAfterHeader("30", now)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	d, ok = ParseRetryAfterHeader("Sun, 01 Mar 2026 12:00:20 GMT", now)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Second, d)

	_, ok = ParseRetryAfterHeader("", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfterHeader("soon", now)
	assert.False(t, ok)
}

func TestNewRateLimitError(t *testing.T) {
	t.Run("header wins", func(t *testing.T) {
		rl := NewRateLimitError(errors.New("please retry in 50s"), "7")
		assert.True(t, rl.HasHint)
		assert.Equal(t, 7*time.Second, rl.RetryAfter)
		assert.Contains(t, rl.Error(), "retry in 7s")
	})

	t.Run("message fallback", func(t *testing.T) {
		rl := NewRateLimitError(errors.New("please retry in 3.2s"), "")
		assert.True(t, rl.HasHint)
		assert.Equal(t, 4*time.Second, rl.RetryAfter)
	})

	t.Run("no hint", func(t *testing.T) {
		rl := NewRateLimitError(errors.New("slow down"), "")
		assert.False(t, rl.HasHint)
		assert.Equal(t, "rate limited: slow down", rl.Error())
	})
}

func TestRetryAfterHint(t *testing.T) {
	wrapped := fmt.Errorf("gemini: generate: %w", NewRateLimitError(errors.New("quota"), "9"))
	d, ok := RetryAfterHint(wrapped)
	require.True(t, ok)
	assert.Equal(t, 9*time.Second, d)

	// Plain SDK error text still yields the hint.
	d, ok = RetryAfterHint(errors.New("429: Please retry in 5s"))
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	_, ok = RetryAfterHint(errors.New("boom"))
	assert.False(t, ok)
	_, ok = RetryAfterHint(nil)
	assert.False(t, ok)
}
