package llm

import (
	"fmt"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/model"
)

// GeneratorFactory builds a provider client for a family and model name. An
// empty model name means the family's configured default.
type GeneratorFactory func(family model.Provider, modelName string) (Generator, error)

// Registry hands out retry-wrapped callers per stage configuration. It is the
// single path from an operation's provider selection to a usable client.
type Registry struct {
	factory GeneratorFactory
	retry   config.RetryConfig
}

// NewRegistry creates a caller registry over a generator factory.
func NewRegistry(factory GeneratorFactory, retry config.RetryConfig) *Registry {
	return &Registry{factory: factory, retry: retry}
}

// CallerFor resolves a stage's provider selection to a retrying caller.
func (r *Registry) CallerFor(pc model.ProviderConfig) (*Caller, error) {
	gen, err := r.factory(pc.Provider, pc.Model)
	if err != nil {
		return nil, err
	}
	if !gen.IsConfigured() {
		return nil, fmt.Errorf("provider %s is not configured", pc.Provider)
	}
	return NewCaller(gen, PolicyFor(gen.Family(), r.retry)), nil
}
