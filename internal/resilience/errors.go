package resilience

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError is an HTTP 429 (or provider quota) failure. RetryAfter is
// set when the provider said how long to wait.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	HasHint    bool
}

func (e *RateLimitError) Error() string {
	if e.HasHint {
		return fmt.Sprintf("rate limited (retry in %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError builds a RateLimitError, taking the hint from the
// Retry-After header value when present and otherwise from the message.
func NewRateLimitError(err error, retryAfterHeader string) *RateLimitError {
	rl := &RateLimitError{Err: err}
	if d, ok := ParseRetryAfterHeader(retryAfterHeader, time.Now()); ok {
		rl.RetryAfter, rl.HasHint = d, true
	} else if err != nil {
		rl.RetryAfter, rl.HasHint = ParseRetryHint(err.Error())
	}
	return rl
}

var retryInRe = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)

// ParseRetryHint extracts a "retry in N s" hint from an error message,
// rounding fractional seconds up.
func ParseRetryHint(msg string) (time.Duration, bool) {
	m := retryInRe.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(math.Ceil(secs)) * time.Second, true
}

// ParseRetryAfterHeader parses a Retry-After header given as delta-seconds
// or an HTTP date relative to now.
func ParseRetryAfterHeader(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d.Round(time.Second), true
	}
	return 0, false
}

// RetryAfterHint returns the wait a rate-limited call asked for. It checks
// for a RateLimitError in the chain first, then falls back to scanning the
// error message, since some SDKs only surface the hint as text.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.HasHint {
		return rl.RetryAfter, true
	}
	return ParseRetryHint(err.Error())
}

// IsRateLimited reports whether err is (or wraps) a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// transientMessages are substrings of network failures that reach us only
// as text, after an SDK or HTTP client has flattened the original error.
var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying against the same
// provider: an explicit TransientError or RateLimitError, a network timeout,
// a reset or refused connection, or a message matching a known network
// failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) || IsRateLimited(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// StatusOverloaded is the non-standard status Anthropic returns when the
// API is over capacity.
const StatusOverloaded = 529

// IsTransientHTTPStatus reports whether a provider status is a temporary
// server or capacity problem.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		StatusOverloaded:
		return true
	}
	return false
}
