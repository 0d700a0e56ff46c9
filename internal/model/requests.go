package model

import "time"

// CreatePipelineRequest starts a new pipeline run for a document.
type CreatePipelineRequest struct {
	DocumentID         string           `json:"documentId" validate:"required"`
	DocumentPath       string           `json:"documentPath" validate:"required"`
	SelectedOperations []OperationKind  `json:"selectedOperations" validate:"required,min=1,dive,oneof=adjust update improve adapt translate"`
	OperationConfigs   OperationConfigs `json:"operationConfigs"`
}

// CreatePipelineResponse acknowledges an accepted pipeline job.
type CreatePipelineResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// StageProgress is the aggregated progress of the currently running stage.
type StageProgress struct {
	Operation      OperationKind `json:"operation"`
	OperationIndex int           `json:"operationIndex"`
	Percentage     int           `json:"percentage"`
	Message        string        `json:"message,omitempty"`
}

// PipelineStatusResponse is the full poll view of a pipeline job.
type PipelineStatusResponse struct {
	Job                      *PipelineJob           `json:"job"`
	IntermediateDocuments    []IntermediateDocument `json:"intermediateDocuments"`
	CurrentOperationProgress *StageProgress         `json:"currentOperationProgress,omitempty"`
}

// ApproveStageRequest submits the accepted suggestion ids for the stage
// awaiting approval. An empty list rejects every suggestion; the stage then
// passes its input through unchanged.
type ApproveStageRequest struct {
	ApprovedItemIDs []string `json:"approvedItemIds"`
}

// ApproveStageResponse acknowledges an accepted approval.
type ApproveStageResponse struct {
	JobID          string    `json:"jobId"`
	OperationIndex int       `json:"operationIndex"`
	Status         JobStatus `json:"status"`
	ApprovedCount  int       `json:"approvedCount"`
}

// CancelPipelineResponse acknowledges a cancellation.
type CancelPipelineResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// PauseResumeResponse acknowledges a pause or resume.
type PauseResumeResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// StageSuggestionsResponse lists the current stage's proposed edits for the
// approval UI.
type StageSuggestionsResponse struct {
	JobID          string        `json:"jobId"`
	Operation      OperationKind `json:"operation"`
	OperationIndex int           `json:"operationIndex"`
	Suggestions    []Suggestion  `json:"suggestions"`
}
