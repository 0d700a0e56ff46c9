package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/store"
)

// StageProgress aggregates the current stage's fine-grained progress for the
// poll endpoint. A job that is not mid-stage, or whose operation job cannot
// be found, reports no progress rather than an error.
func (e *Engine) StageProgress(ctx context.Context, job *model.PipelineJob) *model.StageProgress {
	if job.Status != model.JobStatusRunning && job.Status != model.JobStatusApplyingChanges {
		return nil
	}
	kind := job.CurrentOperation()
	if kind == "" {
		return nil
	}

	opJob, err := e.currentOpJob(ctx, job, kind)
	if err != nil {
		return nil
	}

	message := opJob.ProgressMessage
	if message == "" && opJob.TotalSections > 0 {
		message = fmt.Sprintf("section %d of %d", opJob.CurrentSection, opJob.TotalSections)
	}
	return &model.StageProgress{
		Operation:      kind,
		OperationIndex: job.CurrentOperationIndex,
		Percentage:     opJob.ProgressPercentage,
		Message:        message,
	}
}

// currentOpJob finds the operation job backing the current stage. While the
// stage is still running its result row does not exist yet, so the usual
// path is the latest-running lookup by document and operation.
func (e *Engine) currentOpJob(ctx context.Context, job *model.PipelineJob, kind model.OperationKind) (*model.OperationJob, error) {
	if result := job.ResultFor(job.CurrentOperationIndex); result != nil && result.OperationJobID != "" {
		opJob, err := e.ops.Get(ctx, result.OperationJobID)
		if err == nil {
			return opJob, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return e.ops.LatestRunning(ctx, job.DocumentID, kind)
}
