// Package service implements the pipeline API operations: creation, status,
// approval, cancellation, pause/resume and downloads. Handlers stay thin;
// every state rule lives here or in the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/docpipe/api/internal/client"
	"github.com/docpipe/api/internal/engine"
	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/store"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// job's current status.
	ErrInvalidState = errors.New("operation not allowed in current job state")
	// ErrUnknownSuggestion is returned when an approval names ids the
	// stage never proposed.
	ErrUnknownSuggestion = errors.New("unknown suggestion id")
	// ErrInvalidConfig is returned when the operation selection and its
	// configs do not line up.
	ErrInvalidConfig = errors.New("invalid operation configs")
)

// PipelineService drives pipeline jobs from the HTTP surface.
type PipelineService struct {
	pipelines store.PipelineStore
	ops       store.OperationStore
	docs      store.DocumentIndex
	storage   client.StorageClient
	engine    *engine.Engine
	enqueuer  engine.Enqueuer
	validate  *validator.Validate
}

// NewPipelineService creates the pipeline service.
func NewPipelineService(
	pipelines store.PipelineStore,
	ops store.OperationStore,
	docs store.DocumentIndex,
	storage client.StorageClient,
	eng *engine.Engine,
	enqueuer engine.Enqueuer,
	validate *validator.Validate,
) *PipelineService {
	return &PipelineService{
		pipelines: pipelines,
		ops:       ops,
		docs:      docs,
		storage:   storage,
		engine:    eng,
		enqueuer:  enqueuer,
		validate:  validate,
	}
}

// Create validates and persists a new pipeline job and enqueues its first
// stage. The job is accepted as pending; execution happens on the worker.
func (s *PipelineService) Create(ctx context.Context, req *model.CreatePipelineRequest) (*model.CreatePipelineResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if err := req.OperationConfigs.ValidateFor(req.SelectedOperations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.validateConfigs(req.OperationConfigs, req.SelectedOperations); err != nil {
		return nil, err
	}

	job := &model.PipelineJob{
		ID:                 uuid.NewString(),
		DocumentID:         req.DocumentID,
		DocumentPath:       req.DocumentPath,
		SelectedOperations: req.SelectedOperations,
		OperationConfigs:   req.OperationConfigs,
		Status:             model.JobStatusPending,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.pipelines.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create pipeline job: %w", err)
	}

	if err := s.enqueuer.EnqueueStage(ctx, job.ID, 0); err != nil {
		msg := fmt.Sprintf("failed to enqueue first stage: %v", err)
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.ErrorMessage = &msg
		job.CompletedAt = &now
		_ = s.pipelines.SaveIf(ctx, job, model.JobStatusPending)
		return nil, errors.New(msg)
	}

	return &model.CreatePipelineResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// validateConfigs runs struct validation on each config present for a
// selected operation.
func (s *PipelineService) validateConfigs(c model.OperationConfigs, selected []model.OperationKind) error {
	for _, op := range selected {
		var cfg any
		switch op {
		case model.OperationAdjust:
			cfg = c.Adjust
		case model.OperationUpdate:
			cfg = c.Update
		case model.OperationImprove:
			cfg = c.Improve
		case model.OperationAdapt:
			cfg = c.Adapt
		case model.OperationTranslate:
			cfg = c.Translate
		}
		if err := s.validate.Struct(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the full poll view of a job.
func (s *PipelineService) Status(ctx context.Context, jobID string) (*model.PipelineStatusResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	docs, err := s.docs.List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.PipelineStatusResponse{
		Job:                      job,
		IntermediateDocuments:    docs,
		CurrentOperationProgress: s.engine.StageProgress(ctx, job),
	}, nil
}

// Approve accepts a subset of the current stage's suggestions and moves the
// job into the apply phase. Only a job awaiting approval can be approved.
func (s *PipelineService) Approve(ctx context.Context, jobID string, req *model.ApproveStageRequest) (*model.ApproveStageResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusAwaitingApproval {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}

	result := job.ResultFor(job.CurrentOperationIndex)
	if result == nil || result.Status != model.StageStatusAwaitingApproval {
		return nil, fmt.Errorf("%w: no stage awaiting approval", ErrInvalidState)
	}
	opJob, err := s.ops.Get(ctx, result.OperationJobID)
	if err != nil {
		return nil, err
	}
	if err := checkSuggestionIDs(opJob.Suggestions, req.ApprovedItemIDs); err != nil {
		return nil, err
	}

	result.ApprovedItems = req.ApprovedItemIDs
	if len(req.ApprovedItemIDs) > 0 {
		result.ApprovalStatus = model.ApprovalApproved
	} else {
		result.ApprovalStatus = model.ApprovalRejected
	}
	job.Status = model.JobStatusApplyingChanges

	if err := s.pipelines.SaveIf(ctx, job, model.JobStatusAwaitingApproval); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: job changed concurrently", ErrInvalidState)
		}
		return nil, err
	}
	if err := s.enqueuer.EnqueueApply(ctx, job.ID, job.CurrentOperationIndex); err != nil {
		// No apply task exists and applying_changes accepts no recovery
		// operation, so the job must not be left there.
		msg := fmt.Sprintf("failed to enqueue apply: %v", err)
		now := time.Now().UTC()
		job.Status = model.JobStatusFailed
		job.ErrorMessage = &msg
		job.CompletedAt = &now
		_ = s.pipelines.SaveIf(ctx, job, model.JobStatusApplyingChanges)
		return nil, errors.New(msg)
	}

	return &model.ApproveStageResponse{
		JobID:          job.ID,
		OperationIndex: job.CurrentOperationIndex,
		Status:         job.Status,
		ApprovedCount:  len(req.ApprovedItemIDs),
	}, nil
}

func checkSuggestionIDs(suggestions []model.Suggestion, ids []string) error {
	known := make(map[string]bool, len(suggestions))
	for _, sg := range suggestions {
		known[sg.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("%w: %s", ErrUnknownSuggestion, id)
		}
	}
	return nil
}

// Suggestions lists the current stage's proposed edits.
func (s *PipelineService) Suggestions(ctx context.Context, jobID string) (*model.StageSuggestionsResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusAwaitingApproval {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	result := job.ResultFor(job.CurrentOperationIndex)
	if result == nil {
		return nil, fmt.Errorf("%w: no stage awaiting approval", ErrInvalidState)
	}
	opJob, err := s.ops.Get(ctx, result.OperationJobID)
	if err != nil {
		return nil, err
	}
	return &model.StageSuggestionsResponse{
		JobID:          job.ID,
		Operation:      result.Operation,
		OperationIndex: result.OperationIndex,
		Suggestions:    opJob.Suggestions,
	}, nil
}

// Cancel requests cancellation. Pending, running and paused jobs can be
// cancelled; a running stage stops before its next provider call. Cancelling
// an already-cancelled job is a no-op.
func (s *PipelineService) Cancel(ctx context.Context, jobID string) (*model.CancelPipelineResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusCancelled {
		return &model.CancelPipelineResponse{JobID: job.ID, Status: job.Status}, nil
	}
	if !job.Status.Cancellable() {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}

	expect := job.Status
	now := time.Now().UTC()
	job.Status = model.JobStatusCancelled
	job.CompletedAt = &now
	if err := s.pipelines.SaveIf(ctx, job, expect); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: job changed concurrently", ErrInvalidState)
		}
		return nil, err
	}
	return &model.CancelPipelineResponse{JobID: job.ID, Status: job.Status}, nil
}

// Pause parks a running job. The stage in flight stops before its next
// provider call; Resume restarts that stage from its beginning.
func (s *PipelineService) Pause(ctx context.Context, jobID string) (*model.PauseResumeResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusRunning {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	job.Status = model.JobStatusPaused
	if err := s.pipelines.SaveIf(ctx, job, model.JobStatusRunning); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: job changed concurrently", ErrInvalidState)
		}
		return nil, err
	}
	return &model.PauseResumeResponse{JobID: job.ID, Status: job.Status}, nil
}

// Resume re-enqueues the current stage of a paused job.
func (s *PipelineService) Resume(ctx context.Context, jobID string) (*model.PauseResumeResponse, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusPaused {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}
	job.Status = model.JobStatusRunning
	if err := s.pipelines.SaveIf(ctx, job, model.JobStatusPaused); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: job changed concurrently", ErrInvalidState)
		}
		return nil, err
	}
	if err := s.enqueuer.EnqueueStage(ctx, job.ID, job.CurrentOperationIndex); err != nil {
		return nil, fmt.Errorf("failed to enqueue stage: %w", err)
	}
	return &model.PauseResumeResponse{JobID: job.ID, Status: job.Status}, nil
}

// Download returns the final document of a completed job, or, when
// stageIndex is non-negative, the artifact a given stage produced.
func (s *PipelineService) Download(ctx context.Context, jobID string, stageIndex int) ([]byte, string, error) {
	job, err := s.pipelines.Get(ctx, jobID)
	if err != nil {
		return nil, "", err
	}

	path := job.FinalDocumentPath
	if stageIndex >= 0 {
		result := job.ResultFor(stageIndex)
		if result == nil || result.OutputDocumentPath == "" {
			return nil, "", store.ErrNotFound
		}
		path = result.OutputDocumentPath
	} else if job.Status != model.JobStatusCompleted || path == "" {
		return nil, "", fmt.Errorf("%w: job is %s", ErrInvalidState, job.Status)
	}

	data, err := s.storage.Download(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", path, err)
	}
	return data, path, nil
}
