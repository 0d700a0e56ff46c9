// Package store persists pipeline jobs, sub-operation jobs and intermediate
// document records. Pipeline rows are the only shared mutable state in the
// system; every status-changing write goes through SaveIf, a conditional
// save keyed on the expected current status, so duplicate triggers and stale
// workers cannot advance a job that has moved on.
package store

import (
	"context"
	"errors"

	"github.com/docpipe/api/internal/model"
)

var (
	// ErrNotFound is returned for unknown job or record ids.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by SaveIf when the stored status is no
	// longer one of the expected values.
	ErrConflict = errors.New("job status changed concurrently")
)

// PipelineStore persists pipeline job rows.
type PipelineStore interface {
	Create(ctx context.Context, job *model.PipelineJob) error
	Get(ctx context.Context, id string) (*model.PipelineJob, error)
	// SaveIf persists job only if the stored row's status is one of
	// expect. Returns ErrConflict otherwise.
	SaveIf(ctx context.Context, job *model.PipelineJob, expect ...model.JobStatus) error
}

// OperationStore persists sub-operation tracking records.
type OperationStore interface {
	Create(ctx context.Context, op *model.OperationJob) error
	Get(ctx context.Context, id string) (*model.OperationJob, error)
	Save(ctx context.Context, op *model.OperationJob) error
	// LatestRunning returns the most recently created running operation
	// job for a document and operation kind. Used as the progress
	// fallback when the result row has no operationJobId yet. Returns
	// ErrNotFound when there is none.
	LatestRunning(ctx context.Context, documentID string, op model.OperationKind) (*model.OperationJob, error)
}

// DocumentIndex records intermediate document artifacts, append-only.
type DocumentIndex interface {
	Append(ctx context.Context, doc *model.IntermediateDocument) error
	List(ctx context.Context, pipelineJobID string) ([]model.IntermediateDocument, error)
}

func statusAllowed(current model.JobStatus, expect []model.JobStatus) bool {
	if len(expect) == 0 {
		return true
	}
	for _, s := range expect {
		if current == s {
			return true
		}
	}
	return false
}
