package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/hibiken/asynq"

	"github.com/docpipe/api/internal/engine"
)

// PipelineWorker dispatches stage and apply tasks into the engine. A panic
// in a stage fails that task without taking the worker process down.
type PipelineWorker struct {
	engine *engine.Engine
}

// NewPipelineWorker creates the worker over an engine.
func NewPipelineWorker(eng *engine.Engine) *PipelineWorker {
	return &PipelineWorker{engine: eng}
}

// ProcessStageTask handles pipeline:stage tasks.
func (w *PipelineWorker) ProcessStageTask(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	defer recoverTask(payload, &err)

	log.Printf("Starting stage %d of pipeline %s", payload.StageIndex, payload.JobID)
	return w.engine.RunStage(ctx, payload.JobID, payload.StageIndex)
}

// ProcessApplyTask handles pipeline:apply tasks.
func (w *PipelineWorker) ProcessApplyTask(ctx context.Context, t *asynq.Task) (err error) {
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	defer recoverTask(payload, &err)

	log.Printf("Applying stage %d of pipeline %s", payload.StageIndex, payload.JobID)
	return w.engine.ApplyStage(ctx, payload.JobID, payload.StageIndex)
}

func decodePayload(t *asynq.Task) (stagePayload, error) {
	var payload stagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return payload, nil
}

func recoverTask(payload stagePayload, err *error) {
	if r := recover(); r != nil {
		log.Printf("panic in task for pipeline %s stage %d: %v\n%s",
			payload.JobID, payload.StageIndex, r, debug.Stack())
		*err = fmt.Errorf("task panicked: %v", r)
	}
}
