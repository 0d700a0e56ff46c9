package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docpipe/api/internal/model"
)

// ErrorKind is the closed classification of provider failures. Providers do
// not reliably expose structured error codes, so classification falls back
// to message matching, but only inside Classify, nowhere else.
type ErrorKind string

const (
	// KindRateLimited covers HTTP 429s, quota exhaustion and explicit
	// "retry in Ns" responses. Retried with a provider-suggested or
	// fixed delay.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTimeout covers calls that exceeded the wall-clock budget or
	// lost the connection. Retried with a short fixed delay.
	KindTimeout ErrorKind = "timeout"
	// KindEmptyResponse means the provider answered but produced no
	// usable content. Repeating the identical request is known not to
	// help, so this is never retried.
	KindEmptyResponse ErrorKind = "empty_response"
	// KindFatal is everything else, including malformed model output.
	KindFatal ErrorKind = "fatal"
)

var (
	// ErrEmptyResponse is returned by Generators when the completion has
	// no content.
	ErrEmptyResponse = errors.New("provider returned no usable content")
	// ErrRetriesExhausted distinguishes "gave up after the attempt cap"
	// from a first-attempt fatal error.
	ErrRetriesExhausted = errors.New("provider retries exhausted")
)

// ProviderError is a non-2xx HTTP response from a provider, kept with enough
// raw detail for classification.
type ProviderError struct {
	Family     model.Provider
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Family, e.StatusCode, e.Body)
}

// Classify maps an error from a provider call onto an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindEmptyResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch {
		case provErr.StatusCode == 429:
			return KindRateLimited
		case provErr.StatusCode == 408 || provErr.StatusCode == 504:
			return KindTimeout
		case provErr.StatusCode >= 500:
			if matchesRateLimit(provErr.Body) {
				return KindRateLimited
			}
			return KindTimeout
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case matchesRateLimit(msg):
		return KindRateLimited
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	}
	return KindFatal
}

func matchesRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "retry in") ||
		strings.Contains(msg, "retry after")
}

// retryDelayPattern matches provider-suggested waits like "retry in 5.5s",
// "Retry after 30 s" or "retry in 12 seconds".
var retryDelayPattern = regexp.MustCompile(`(?i)retry\s+(?:in|after)\s*([0-9]+(?:\.[0-9]+)?)\s*s`)

// SuggestedDelay extracts a provider-suggested retry delay from an error
// message. The bool is false when no suggestion is present.
func SuggestedDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryDelayPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	secs, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
