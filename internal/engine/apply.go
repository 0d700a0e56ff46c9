package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/store"
	"github.com/docpipe/api/internal/textdoc"
)

// ApplyStage materializes an approved stage: it rewrites the stage's input
// document with the accepted suggestions, stores the result as a new
// artifact, and advances the pipeline. An apply that errors fails the whole
// job; there is no rollback, the job row records where it stopped.
func (e *Engine) ApplyStage(ctx context.Context, jobID string, stageIndex int) error {
	job, err := e.pipelines.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusApplyingChanges || job.CurrentOperationIndex != stageIndex {
		log.Printf("apply trigger dropped: job %s is %s at stage %d",
			jobID, job.Status, job.CurrentOperationIndex)
		return nil
	}

	result := job.ResultFor(stageIndex)
	if result == nil {
		return e.failJob(ctx, job, fmt.Errorf("no result recorded for stage %d", stageIndex))
	}
	opJob, err := e.ops.Get(ctx, result.OperationJobID)
	if err != nil {
		return e.failJob(ctx, job, fmt.Errorf("failed to load operation job %s: %w", result.OperationJobID, err))
	}

	document, err := e.loadStageInput(ctx, job, stageIndex)
	if err != nil {
		return e.failJob(ctx, job, fmt.Errorf("failed to load stage input: %w", err))
	}

	edits := acceptedEdits(opJob.Suggestions, result.ApprovedItems)
	rewritten, applied := textdoc.ApplyEdits(document, edits)

	path, err := e.storeArtifact(ctx, job, stageIndex, result.Operation, opJob.ID, rewritten)
	if err != nil {
		return e.failJob(ctx, job, err)
	}

	opJob.OutputPath = path
	if err := e.ops.Save(ctx, opJob); err != nil {
		log.Printf("failed to save operation job %s: %v", opJob.ID, err)
	}

	now := time.Now().UTC()
	result.Status = model.StageStatusCompleted
	result.OutputDocumentPath = path
	result.CompletedAt = &now
	result.Metadata.ItemsApplied = applied

	e.notifier.NotifyStage(job.ID, model.JobStatusApplyingChanges, result.Operation, stageIndex)

	if err := e.advance(ctx, job, path, model.JobStatusApplyingChanges); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return e.failJob(ctx, job, err)
	}
	return nil
}

// acceptedEdits keeps only the suggestions whose ids were approved,
// preserving suggestion order.
func acceptedEdits(suggestions []model.Suggestion, approvedIDs []string) []textdoc.Edit {
	accepted := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		accepted[id] = true
	}
	var edits []textdoc.Edit
	for _, s := range suggestions {
		if accepted[s.ID] {
			edits = append(edits, textdoc.Edit{Original: s.OriginalText, Proposed: s.ProposedText})
		}
	}
	return edits
}
