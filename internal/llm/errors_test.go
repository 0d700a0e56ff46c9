package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/docpipe/api/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"empty response sentinel", ErrEmptyResponse, KindEmptyResponse},
		{"wrapped empty response", fmt.Errorf("call failed: %w", ErrEmptyResponse), KindEmptyResponse},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"openai 429", &ProviderError{Family: model.ProviderOpenAI, StatusCode: 429, Body: `{"error":{"message":"Rate limit reached"}}`}, KindRateLimited},
		{"gateway timeout", &ProviderError{Family: model.ProviderOpenAI, StatusCode: 504, Body: "upstream timeout"}, KindTimeout},
		{"server error", &ProviderError{Family: model.ProviderGemini, StatusCode: 500, Body: "internal error"}, KindTimeout},
		{"quota in 500 body", &ProviderError{Family: model.ProviderGemini, StatusCode: 503, Body: "RESOURCE_EXHAUSTED: quota exceeded"}, KindRateLimited},
		{"gemini quota message", errors.New("googleapi: Error 429: Quota exceeded, please retry in 21.5s"), KindRateLimited},
		{"plain timeout message", errors.New("request timed out"), KindTimeout},
		{"connection reset", errors.New("read tcp: connection reset by peer"), KindTimeout},
		{"malformed json", errors.New("invalid character 'x' looking for beginning of value"), KindFatal},
		{"auth failure", &ProviderError{Family: model.ProviderOpenAI, StatusCode: 401, Body: "invalid api key"}, KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuggestedDelay(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   time.Duration
		wantOK bool
	}{
		{"fractional seconds", errors.New("quota exceeded, retry in 5.5s"), 5500 * time.Millisecond, true},
		{"whole seconds", errors.New("please retry in 30s"), 30 * time.Second, true},
		{"retry after", errors.New("rate limited, Retry after 12 s"), 12 * time.Second, true},
		{"no suggestion", errors.New("rate limit exceeded"), 0, false},
		{"nil error", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestedDelay(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("SuggestedDelay() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("SuggestedDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}
