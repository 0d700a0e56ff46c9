// Package worker runs pipeline stages on the asynq queue. Stage and apply
// tasks carry only the job id and stage index; all state lives in the job
// row. Tasks never retry at the queue level: provider retries happen inside
// the stage, and a redelivered task could race a job that has moved on.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeStage runs one pipeline stage's analysis phase.
	TaskTypeStage = "pipeline:stage"
	// TaskTypeApply materializes an approved stage.
	TaskTypeApply = "pipeline:apply"

	// QueueStage and QueueApply keep stage runs and applies on separate
	// queues so a burst of long-running stages cannot starve approvals.
	QueueStage = "pipeline"
	QueueApply = "apply"
)

type stagePayload struct {
	JobID      string `json:"jobId"`
	StageIndex int    `json:"stageIndex"`
}

// Queue is the asynq-backed enqueuer used by the service and the engine.
type Queue struct {
	client *asynq.Client
}

// NewQueue wraps an asynq client.
func NewQueue(client *asynq.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) EnqueueStage(ctx context.Context, jobID string, stageIndex int) error {
	return q.enqueue(ctx, TaskTypeStage, QueueStage, jobID, stageIndex)
}

func (q *Queue) EnqueueApply(ctx context.Context, jobID string, stageIndex int) error {
	return q.enqueue(ctx, TaskTypeApply, QueueApply, jobID, stageIndex)
}

func (q *Queue) enqueue(ctx context.Context, taskType, queue, jobID string, stageIndex int) error {
	data, err := json.Marshal(stagePayload{JobID: jobID, StageIndex: stageIndex})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s for job %s: %w", taskType, jobID, err)
	}
	return nil
}
