package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/docpipe/api/internal/client"
	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/engine"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/operation"
	"github.com/docpipe/api/internal/store"
)

// syncQueue runs stage and apply tasks inline so a whole pipeline can be
// exercised from the service surface without Redis.
type syncQueue struct {
	engine *engine.Engine
}

func (q *syncQueue) EnqueueStage(ctx context.Context, jobID string, stageIndex int) error {
	return q.engine.RunStage(ctx, jobID, stageIndex)
}

func (q *syncQueue) EnqueueApply(ctx context.Context, jobID string, stageIndex int) error {
	return q.engine.ApplyStage(ctx, jobID, stageIndex)
}

type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string) (string, llm.Usage, error) {
	i := g.calls
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	g.calls++
	return g.responses[i], llm.Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15}, nil
}

func (g *scriptedGenerator) Family() model.Provider { return model.ProviderOpenAI }
func (g *scriptedGenerator) Model() string          { return "test-model" }
func (g *scriptedGenerator) IsConfigured() bool     { return true }

func newTestService(t *testing.T, responses ...string) (*PipelineService, *client.MemoryStorage) {
	t.Helper()

	gen := &scriptedGenerator{responses: responses}
	callers := llm.NewRegistry(
		func(model.Provider, string) (llm.Generator, error) { return gen, nil },
		config.RetryConfig{CallTimeout: time.Second, OpenAIMaxAttempts: 1, GeminiMaxAttempts: 1},
	)
	executors := operation.NewRegistry(callers, config.PricingConfig{}, 15)

	stores := store.NewMemoryStores()
	storage := client.NewMemoryStorage()
	queue := &syncQueue{}
	eng := engine.New(stores, stores.Operations(), stores.Documents(), storage, executors, queue, nil)
	queue.engine = eng

	if _, err := storage.Upload(context.Background(), "uploads/doc-1.md",
		strings.NewReader("Hello world.\n\nGoodbye world."), "text/markdown"); err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}

	svc := NewPipelineService(stores, stores.Operations(), stores.Documents(),
		storage, eng, queue, validator.New())
	return svc, storage
}

func improveRequest() *model.CreatePipelineRequest {
	return &model.CreatePipelineRequest{
		DocumentID:         "doc-1",
		DocumentPath:       "uploads/doc-1.md",
		SelectedOperations: []model.OperationKind{model.OperationImprove},
		OperationConfigs: model.OperationConfigs{
			Improve: &model.ImproveConfig{
				ProviderConfig: model.ProviderConfig{Provider: model.ProviderOpenAI, Model: "test-model"},
			},
		},
	}
}

const improveSuggestions = `[
	{"originalText":"Hello world.","proposedText":"Hi world.","reason":"shorter","category":"clarity"},
	{"originalText":"Goodbye world.","proposedText":"Bye world.","reason":"shorter","category":"clarity"}
]`

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, "[]")
	ctx := context.Background()

	// Missing document path.
	req := improveRequest()
	req.DocumentPath = ""
	if _, err := svc.Create(ctx, req); err == nil {
		t.Error("Create() accepted a request without documentPath")
	}

	// Unknown operation name.
	req = improveRequest()
	req.SelectedOperations = []model.OperationKind{"summarize"}
	if _, err := svc.Create(ctx, req); err == nil {
		t.Error("Create() accepted an unknown operation")
	}

	// Selected operation without config.
	req = improveRequest()
	req.OperationConfigs = model.OperationConfigs{}
	if _, err := svc.Create(ctx, req); err == nil {
		t.Error("Create() accepted a selection without its config")
	}

	// Duplicate operation.
	req = improveRequest()
	req.SelectedOperations = []model.OperationKind{model.OperationImprove, model.OperationImprove}
	if _, err := svc.Create(ctx, req); err == nil {
		t.Error("Create() accepted a duplicate operation")
	}
}

func TestCreateRunsToApproval(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, err := svc.Create(ctx, improveRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("no job id")
	}

	// The sync queue ran the stage inline.
	status, err := svc.Status(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Job.Status != model.JobStatusAwaitingApproval {
		t.Fatalf("status = %s, want awaiting_approval", status.Job.Status)
	}

	suggestions, err := svc.Suggestions(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}
	if len(suggestions.Suggestions) != 2 {
		t.Errorf("suggestions = %d, want 2", len(suggestions.Suggestions))
	}
}

func TestApproveFullFlow(t *testing.T) {
	svc, storage := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, err := svc.Create(ctx, improveRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	suggestions, err := svc.Suggestions(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}

	approve, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{
		ApprovedItemIDs: []string{suggestions.Suggestions[0].ID},
	})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approve.ApprovedCount != 1 {
		t.Errorf("approved count = %d, want 1", approve.ApprovedCount)
	}

	status, _ := svc.Status(ctx, resp.JobID)
	if status.Job.Status != model.JobStatusCompleted {
		t.Fatalf("status = %s, want completed after inline apply", status.Job.Status)
	}

	data, _, err := svc.Download(ctx, resp.JobID, -1)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !strings.Contains(string(data), "Hi world.") {
		t.Errorf("final doc = %q", data)
	}
	_ = storage
}

func TestApproveRejectAll(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())
	if _, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{}); err != nil {
		t.Fatalf("Approve(empty) error = %v", err)
	}

	// Rejecting everything still materializes the stage: the document
	// passes through unchanged.
	data, _, err := svc.Download(ctx, resp.JobID, -1)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(data) != "Hello world.\n\nGoodbye world." {
		t.Errorf("final doc = %q, want the unchanged input", data)
	}
}

func TestApproveWrongState(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())
	suggestions, _ := svc.Suggestions(ctx, resp.JobID)
	if _, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{
		ApprovedItemIDs: []string{suggestions.Suggestions[0].ID},
	}); err != nil {
		t.Fatalf("first Approve() error = %v", err)
	}

	// Second approval: the job is already completed.
	_, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Approve() error = %v, want invalid state", err)
	}
}

// brokenApplyQueue runs stages inline but cannot schedule apply tasks.
type brokenApplyQueue struct {
	engine *engine.Engine
}

func (q *brokenApplyQueue) EnqueueStage(ctx context.Context, jobID string, stageIndex int) error {
	return q.engine.RunStage(ctx, jobID, stageIndex)
}

func (q *brokenApplyQueue) EnqueueApply(ctx context.Context, jobID string, stageIndex int) error {
	return errors.New("queue unavailable")
}

func TestApproveEnqueueFailureFailsJob(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{improveSuggestions}}
	callers := llm.NewRegistry(
		func(model.Provider, string) (llm.Generator, error) { return gen, nil },
		config.RetryConfig{CallTimeout: time.Second, OpenAIMaxAttempts: 1, GeminiMaxAttempts: 1},
	)
	executors := operation.NewRegistry(callers, config.PricingConfig{}, 15)
	stores := store.NewMemoryStores()
	storage := client.NewMemoryStorage()
	queue := &brokenApplyQueue{}
	eng := engine.New(stores, stores.Operations(), stores.Documents(), storage, executors, queue, nil)
	queue.engine = eng
	if _, err := storage.Upload(context.Background(), "uploads/doc-1.md",
		strings.NewReader("Hello world.\n\nGoodbye world."), "text/markdown"); err != nil {
		t.Fatalf("failed to seed storage: %v", err)
	}
	svc := NewPipelineService(stores, stores.Operations(), stores.Documents(),
		storage, eng, queue, validator.New())
	ctx := context.Background()

	resp, err := svc.Create(ctx, improveRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	suggestions, err := svc.Suggestions(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}

	if _, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{
		ApprovedItemIDs: []string{suggestions.Suggestions[0].ID},
	}); err == nil {
		t.Fatal("Approve() expected error when the apply task cannot be enqueued")
	}

	// The job must not be wedged in applying_changes with no apply task.
	status, err := svc.Status(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Job.Status != model.JobStatusFailed {
		t.Fatalf("status = %s, want failed", status.Job.Status)
	}
	if status.Job.ErrorMessage == nil || !strings.Contains(*status.Job.ErrorMessage, "enqueue apply") {
		t.Errorf("errorMessage = %v, want the enqueue failure recorded", status.Job.ErrorMessage)
	}
}

func TestApproveUnknownSuggestionID(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())
	_, err := svc.Approve(ctx, resp.JobID, &model.ApproveStageRequest{
		ApprovedItemIDs: []string{"no-such-id"},
	})
	if !errors.Is(err, ErrUnknownSuggestion) {
		t.Fatalf("Approve() error = %v, want unknown suggestion", err)
	}

	// The failed approval must not have moved the job.
	status, _ := svc.Status(ctx, resp.JobID)
	if status.Job.Status != model.JobStatusAwaitingApproval {
		t.Errorf("status = %s, want awaiting_approval", status.Job.Status)
	}
}

func TestCancel(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())

	// Awaiting approval cannot be cancelled.
	if _, err := svc.Cancel(ctx, resp.JobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Cancel(awaiting) error = %v, want invalid state", err)
	}

	// Unknown job.
	if _, err := svc.Cancel(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Cancel(missing) error = %v, want not found", err)
	}
}

func TestCancelIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Build a pending job directly; the sync queue is bypassed so it
	// stays pending.
	job := &model.PipelineJob{
		ID: "job-c", DocumentID: "doc-1", DocumentPath: "uploads/doc-1.md",
		SelectedOperations: []model.OperationKind{model.OperationTranslate},
		Status:             model.JobStatusPending, CreatedAt: time.Now().UTC(),
	}
	if err := svc.pipelines.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first, err := svc.Cancel(ctx, "job-c")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if first.Status != model.JobStatusCancelled {
		t.Errorf("status = %s", first.Status)
	}

	second, err := svc.Cancel(ctx, "job-c")
	if err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if second.Status != model.JobStatusCancelled {
		t.Errorf("second status = %s", second.Status)
	}
}

func TestPauseResumeStateRules(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())

	// Awaiting approval is not pausable.
	if _, err := svc.Pause(ctx, resp.JobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Pause(awaiting) error = %v, want invalid state", err)
	}
	// Nor resumable.
	if _, err := svc.Resume(ctx, resp.JobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Resume(awaiting) error = %v, want invalid state", err)
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	svc, _ := newTestService(t, improveSuggestions)
	ctx := context.Background()

	resp, _ := svc.Create(ctx, improveRequest())
	if _, _, err := svc.Download(ctx, resp.JobID, -1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Download() error = %v, want invalid state", err)
	}
	// A stage that has not produced output yet.
	if _, _, err := svc.Download(ctx, resp.JobID, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Download(stage 0) error = %v, want not found", err)
	}
}
