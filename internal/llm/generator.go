package llm

import (
	"context"

	"github.com/docpipe/api/internal/model"
)

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
}

// Add accumulates another call's usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.ResponseTokens += other.ResponseTokens
	u.TotalTokens += other.TotalTokens
}

// Generator is a single text-generation provider. Implementations live in
// internal/client; everything above the classifier talks to this interface.
type Generator interface {
	// Generate performs one chat completion. An empty completion is
	// reported as ErrEmptyResponse.
	Generate(ctx context.Context, system, user string) (string, Usage, error)
	Family() model.Provider
	Model() string
	IsConfigured() bool
}
