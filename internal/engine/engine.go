// Package engine drives pipeline jobs through their stages. A stage run is
// one worker invocation: load the input document, execute the operation,
// record the outcome on the job row, and either park for approval, enqueue
// the next stage, or finish the pipeline. All job-row writes are conditional
// on the expected status so duplicate or stale triggers fall away harmlessly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docpipe/api/internal/client"
	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/operation"
	"github.com/docpipe/api/internal/store"
)

var (
	// errCancelled stops a stage between batches after a cancel request.
	errCancelled = errors.New("pipeline cancelled")
	// errPaused parks a stage between batches after a pause request.
	errPaused = errors.New("pipeline paused")
)

// Enqueuer schedules stage and apply work. Satisfied by the asynq-backed
// queue in the worker package and by fakes in tests.
type Enqueuer interface {
	EnqueueStage(ctx context.Context, jobID string, stageIndex int) error
	EnqueueApply(ctx context.Context, jobID string, stageIndex int) error
}

// Notifier pushes live updates to connected clients. Satisfied by the
// websocket hub; a no-op implementation is fine.
type Notifier interface {
	NotifyProgress(jobID string, status model.JobStatus, op model.OperationKind, stageIndex, progress int, message string)
	NotifyStage(jobID string, status model.JobStatus, op model.OperationKind, stageIndex int)
	NotifyComplete(jobID, finalDocumentPath string)
	NotifyError(jobID, message string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyProgress(string, model.JobStatus, model.OperationKind, int, int, string) {}
func (NopNotifier) NotifyStage(string, model.JobStatus, model.OperationKind, int)                {}
func (NopNotifier) NotifyComplete(string, string)                                                {}
func (NopNotifier) NotifyError(string, string)                                                   {}

// Engine executes pipeline stages and approvals.
type Engine struct {
	pipelines store.PipelineStore
	ops       store.OperationStore
	docs      store.DocumentIndex
	storage   client.StorageClient
	executors *operation.Registry
	enqueuer  Enqueuer
	notifier  Notifier
}

// New creates an engine. notifier may be nil.
func New(
	pipelines store.PipelineStore,
	ops store.OperationStore,
	docs store.DocumentIndex,
	storage client.StorageClient,
	executors *operation.Registry,
	enqueuer Enqueuer,
	notifier Notifier,
) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		pipelines: pipelines,
		ops:       ops,
		docs:      docs,
		storage:   storage,
		executors: executors,
		enqueuer:  enqueuer,
		notifier:  notifier,
	}
}

// RunStage executes stage stageIndex of a job. It is safe to call with stale
// or duplicate triggers; they are detected and dropped.
func (e *Engine) RunStage(ctx context.Context, jobID string, stageIndex int) error {
	job, err := e.pipelines.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() || job.Status == model.JobStatusPaused {
		log.Printf("stage trigger dropped: job %s is %s", jobID, job.Status)
		return nil
	}
	if job.CurrentOperationIndex != stageIndex {
		log.Printf("stage trigger dropped: job %s is at stage %d, trigger was for %d",
			jobID, job.CurrentOperationIndex, stageIndex)
		return nil
	}
	if job.Status != model.JobStatusPending && job.Status != model.JobStatusRunning {
		log.Printf("stage trigger dropped: job %s is %s", jobID, job.Status)
		return nil
	}

	expect := job.Status
	job.Status = model.JobStatusRunning
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if err := e.pipelines.SaveIf(ctx, job, expect); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Printf("stage trigger dropped: job %s changed concurrently", jobID)
			return nil
		}
		return err
	}

	kind := job.CurrentOperation()
	exec, err := e.executors.For(kind)
	if err != nil {
		return e.failJob(ctx, job, err)
	}

	document, err := e.loadStageInput(ctx, job, stageIndex)
	if err != nil {
		return e.failJob(ctx, job, fmt.Errorf("failed to load stage input: %w", err))
	}

	opJob := &model.OperationJob{
		ID:            uuid.NewString(),
		PipelineJobID: job.ID,
		DocumentID:    job.DocumentID,
		Operation:     kind,
		Status:        model.OperationJobRunning,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.ops.Create(ctx, opJob); err != nil {
		return e.failJob(ctx, job, fmt.Errorf("failed to create operation job: %w", err))
	}

	started := time.Now()
	out, err := safeExecute(ctx, exec, operation.Input{
		Document: document,
		Configs:  job.OperationConfigs,
		Progress: func(current, total int, message string) {
			e.checkpointProgress(ctx, opJob, current, total, message)
			e.notifier.NotifyProgress(job.ID, model.JobStatusRunning, kind, stageIndex,
				percentage(current, total), message)
		},
		Interrupt: func(ctx context.Context) error {
			return e.checkInterrupt(ctx, job.ID)
		},
	})
	duration := time.Since(started).Seconds()

	switch {
	case errors.Is(err, errCancelled):
		e.finishOpJob(ctx, opJob, model.OperationJobFailed, "cancelled before completion")
		return nil
	case errors.Is(err, errPaused):
		e.finishOpJob(ctx, opJob, model.OperationJobFailed, "paused before completion")
		return nil
	case err != nil:
		e.finishOpJob(ctx, opJob, model.OperationJobFailed, err.Error())
		return e.failJob(ctx, job, err)
	}

	opJob.CostUSD = out.CostUSD
	opJob.Suggestions = out.Suggestions

	result := model.OperationResult{
		Operation:        kind,
		OperationIndex:   stageIndex,
		OperationJobID:   opJob.ID,
		RequiresApproval: out.RequiresApproval,
		Metadata: model.ResultMetadata{
			Provider:        out.Provider,
			Model:           out.Model,
			DurationSeconds: duration,
			CostUSD:         out.CostUSD,
			PromptTokens:    out.Usage.PromptTokens,
			ResponseTokens:  out.Usage.ResponseTokens,
			SectionsTotal:   out.SectionsTotal,
			ItemsGenerated:  len(out.Suggestions),
		},
	}
	if kind == model.OperationTranslate && job.OperationConfigs.Translate != nil {
		result.Metadata.TargetLanguage = job.OperationConfigs.Translate.TargetLanguage
	}
	job.TotalCostUSD += out.CostUSD
	job.TotalDurationSeconds += duration

	if out.RequiresApproval {
		result.Status = model.StageStatusAwaitingApproval
		result.ApprovalStatus = model.ApprovalPending
		job.OperationResults = append(job.OperationResults, result)
		job.Status = model.JobStatusAwaitingApproval
		if err := e.pipelines.SaveIf(ctx, job, model.JobStatusRunning); err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.Printf("stage result dropped: job %s changed concurrently", job.ID)
				return nil
			}
			return err
		}
		e.finishOpJob(ctx, opJob, model.OperationJobCompleted, "")
		e.notifier.NotifyStage(job.ID, model.JobStatusAwaitingApproval, kind, stageIndex)
		return nil
	}

	// Direct-output stage: persist the artifact and advance immediately.
	path, err := e.storeArtifact(ctx, job, stageIndex, kind, opJob.ID, out.OutputDocument)
	if err != nil {
		e.finishOpJob(ctx, opJob, model.OperationJobFailed, err.Error())
		return e.failJob(ctx, job, err)
	}
	opJob.OutputPath = path
	now := time.Now().UTC()
	result.Status = model.StageStatusCompleted
	result.OutputDocumentPath = path
	result.CompletedAt = &now
	job.OperationResults = append(job.OperationResults, result)

	e.finishOpJob(ctx, opJob, model.OperationJobCompleted, "")
	return e.advance(ctx, job, path, model.JobStatusRunning)
}

// advance moves the job past its current stage: either enqueue the next
// stage or finish the pipeline. expect is the status the row must still hold.
func (e *Engine) advance(ctx context.Context, job *model.PipelineJob, lastOutputPath string, expect model.JobStatus) error {
	job.CurrentOperationIndex++

	if job.CurrentOperationIndex >= len(job.SelectedOperations) {
		now := time.Now().UTC()
		job.Status = model.JobStatusCompleted
		job.FinalDocumentPath = lastOutputPath
		job.CompletedAt = &now
		if err := e.pipelines.SaveIf(ctx, job, expect); err != nil {
			if errors.Is(err, store.ErrConflict) {
				log.Printf("completion dropped: job %s changed concurrently", job.ID)
				return nil
			}
			return err
		}
		e.notifier.NotifyComplete(job.ID, job.FinalDocumentPath)
		return nil
	}

	job.Status = model.JobStatusRunning
	if err := e.pipelines.SaveIf(ctx, job, expect); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Printf("advance dropped: job %s changed concurrently", job.ID)
			return nil
		}
		return err
	}
	return e.enqueuer.EnqueueStage(ctx, job.ID, job.CurrentOperationIndex)
}

// failJob marks the job failed. Failure is terminal; an already-terminal row
// is left untouched.
func (e *Engine) failJob(ctx context.Context, job *model.PipelineJob, cause error) error {
	log.Printf("pipeline %s failed at stage %d: %v", job.ID, job.CurrentOperationIndex, cause)
	now := time.Now().UTC()
	msg := cause.Error()
	job.Status = model.JobStatusFailed
	job.ErrorMessage = &msg
	job.CompletedAt = &now
	err := e.pipelines.SaveIf(ctx, job,
		model.JobStatusRunning, model.JobStatusApplyingChanges, model.JobStatusPending)
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	e.notifier.NotifyError(job.ID, msg)
	return nil
}

// checkInterrupt re-reads the job row between batches and reports whether
// the stage should stop.
func (e *Engine) checkInterrupt(ctx context.Context, jobID string) error {
	job, err := e.pipelines.Get(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case model.JobStatusCancelled:
		return errCancelled
	case model.JobStatusPaused:
		return errPaused
	}
	return nil
}

func (e *Engine) checkpointProgress(ctx context.Context, opJob *model.OperationJob, current, total int, message string) {
	opJob.CurrentSection = current
	opJob.TotalSections = total
	opJob.ProgressPercentage = percentage(current, total)
	opJob.ProgressMessage = message
	if err := e.ops.Save(ctx, opJob); err != nil {
		log.Printf("failed to checkpoint progress for operation job %s: %v", opJob.ID, err)
	}
}

func (e *Engine) finishOpJob(ctx context.Context, opJob *model.OperationJob, status model.OperationJobStatus, errMsg string) {
	now := time.Now().UTC()
	opJob.Status = status
	opJob.CompletedAt = &now
	if errMsg != "" {
		opJob.ErrorMessage = &errMsg
	}
	if status == model.OperationJobCompleted {
		opJob.ProgressPercentage = 100
	}
	if err := e.ops.Save(ctx, opJob); err != nil {
		log.Printf("failed to save operation job %s: %v", opJob.ID, err)
	}
}

// loadStageInput resolves and downloads the document a stage reads: the
// original upload for stage 0, the previous stage's output otherwise.
func (e *Engine) loadStageInput(ctx context.Context, job *model.PipelineJob, stageIndex int) (string, error) {
	path := job.DocumentPath
	if stageIndex > 0 {
		prev := job.ResultFor(stageIndex - 1)
		if prev == nil || prev.OutputDocumentPath == "" {
			return "", fmt.Errorf("stage %d has no input: stage %d produced no output", stageIndex, stageIndex-1)
		}
		path = prev.OutputDocumentPath
	}
	data, err := e.storage.Download(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", path, err)
	}
	return string(data), nil
}

// storeArtifact uploads a stage's output document and records it in the
// intermediate document index. Artifacts are immutable; the timestamp in the
// key makes re-applies produce new objects.
func (e *Engine) storeArtifact(ctx context.Context, job *model.PipelineJob, stageIndex int, kind model.OperationKind, opJobID, content string) (string, error) {
	key := fmt.Sprintf("%s/%d_%s_%d", job.ID, stageIndex, kind, time.Now().UTC().UnixMilli())
	if _, err := e.storage.Upload(ctx, key, strings.NewReader(content), "text/markdown"); err != nil {
		return "", fmt.Errorf("failed to upload stage output: %w", err)
	}
	doc := &model.IntermediateDocument{
		ID:             uuid.NewString(),
		PipelineJobID:  job.ID,
		OperationIndex: stageIndex,
		OperationName:  kind,
		StoragePath:    key,
		SizeBytes:      int64(len(content)),
		OperationJobID: opJobID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.docs.Append(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to index stage output: %w", err)
	}
	return key, nil
}

// safeExecute converts an executor panic into a stage failure so the job row
// still records the outcome.
func safeExecute(ctx context.Context, exec operation.Executor, in operation.Input) (out *operation.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in %s executor: %v\n%s", exec.Kind(), r, debug.Stack())
			out, err = nil, fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return exec.Execute(ctx, in)
}

func percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}
