package retry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IsRetriable decides whether another attempt may succeed. Structured errors
// (implementing Retriable) are the primary signal; otherwise the formatted
// message is scanned for well-known substrings. Unknown errors default to
// retriable: a deliberate availability-over-fast-fail policy, worth
// reconsidering per deployment.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var r Retriable
	if errors.As(err, &r) {
		return r.Retriable()
	}
	return classifyMessage(err.Error())
}

// notRetriableHints mark permanent client-side failures (4xx, rate limits).
var notRetriableHints = []string{
	"429", "rate limit",
	"400", "bad request",
	"401", "unauthorized",
	"403", "forbidden",
	"404", "not found",
	"422",
}

// retriableHints mark transient server/network failures.
var retriableHints = []string{
	"500", "502", "503", "504",
	"timeout", "timed out", "deadline",
	"connection refused", "connection reset",
	"temporar", "unavailable", "network", "eof",
}

func classifyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, h := range notRetriableHints {
		if strings.Contains(lower, h) {
			return false
		}
	}
	for _, h := range retriableHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return true
}

// StatusError is an HTTP-status-classified error for remote operations. It
// carries the retry contract structurally so the substring fallback is never
// needed for our own fetches.
type StatusError struct {
	Code       int
	Msg        string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Msg)
}

// Retriable: 5xx and 408 are transient; 429 and other 4xx are not.
func (e *StatusError) Retriable() bool {
	if e.Code >= 500 {
		return true
	}
	return e.Code == 408
}

// RetryDelay honors a server-provided Retry-After when present.
func (e *StatusError) RetryDelay(attempt int) (time.Duration, bool) {
	if e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}
