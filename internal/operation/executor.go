// Package operation implements the five document transformations. Each
// executor runs one stage's analysis phase: split the document into sections,
// batch the paragraphs, call the provider per batch, and produce either a
// finished output document (translate) or a suggestion list for approval
// (everything else).
package operation

import (
	"context"
	"fmt"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/model"
)

// ProgressFunc receives batch-level progress while a stage runs.
type ProgressFunc func(current, total int, message string)

// InterruptFunc is checked between provider calls. A non-nil error stops the
// stage before the next batch; the error is surfaced as the stage's failure.
type InterruptFunc func(ctx context.Context) error

// Input is everything an executor needs for one stage run.
type Input struct {
	Document  string
	Configs   model.OperationConfigs
	Progress  ProgressFunc
	Interrupt InterruptFunc
}

// Output is the analysis-phase result of one stage.
type Output struct {
	// Suggestions is set for approval-gated operations.
	Suggestions []model.Suggestion
	// OutputDocument is set when the stage produced a full document
	// directly (translate).
	OutputDocument   string
	RequiresApproval bool
	Provider         model.Provider
	Model            string
	SectionsTotal    int
	Usage            llm.Usage
	CostUSD          float64
}

// Executor runs one operation kind.
type Executor interface {
	Kind() model.OperationKind
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Registry holds one executor per operation kind.
type Registry struct {
	executors map[model.OperationKind]Executor
}

// NewRegistry wires the five executors over a shared caller registry.
func NewRegistry(callers *llm.Registry, pricing config.PricingConfig, batchSize int) *Registry {
	shared := runner{callers: callers, pricing: pricing, batchSize: batchSize}
	execs := []Executor{
		&suggestionExecutor{runner: shared, kind: model.OperationAdjust, systemPrompt: adjustSystemPrompt},
		&suggestionExecutor{runner: shared, kind: model.OperationUpdate, systemPrompt: updateSystemPrompt},
		&suggestionExecutor{runner: shared, kind: model.OperationImprove, systemPrompt: improveSystemPrompt},
		&suggestionExecutor{runner: shared, kind: model.OperationAdapt, systemPrompt: adaptSystemPrompt},
		&translateExecutor{runner: shared},
	}
	r := &Registry{executors: make(map[model.OperationKind]Executor, len(execs))}
	for _, e := range execs {
		r.executors[e.Kind()] = e
	}
	return r
}

// For returns the executor for a kind.
func (r *Registry) For(kind model.OperationKind) (Executor, error) {
	e, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor for operation %q", kind)
	}
	return e, nil
}

// runner carries the dependencies shared by all executors.
type runner struct {
	callers   *llm.Registry
	pricing   config.PricingConfig
	batchSize int
}

func (r runner) callerFor(configs model.OperationConfigs, kind model.OperationKind) (*llm.Caller, model.ProviderConfig, error) {
	pc, ok := configs.For(kind)
	if !ok {
		return nil, model.ProviderConfig{}, fmt.Errorf("missing config for operation %q", kind)
	}
	caller, err := r.callers.CallerFor(pc)
	if err != nil {
		return nil, model.ProviderConfig{}, err
	}
	return caller, pc, nil
}
