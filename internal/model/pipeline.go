package model

import "time"

// PipelineJob is one multi-stage document transformation run. It is the only
// shared mutable record in the system; every write goes through the store's
// conditional save so that a stale worker can never resurrect a finished job.
type PipelineJob struct {
	ID                   string            `json:"id"`
	DocumentID           string            `json:"documentId"`
	DocumentPath         string            `json:"documentPath"`
	SelectedOperations   []OperationKind   `json:"selectedOperations"`
	OperationConfigs     OperationConfigs  `json:"operationConfigs"`
	Status               JobStatus         `json:"status"`
	CurrentOperationIndex int              `json:"currentOperationIndex"`
	OperationResults     []OperationResult `json:"operationResults"`
	FinalDocumentPath    string            `json:"finalDocumentPath,omitempty"`
	TotalCostUSD         float64           `json:"totalCostUsd"`
	TotalDurationSeconds float64           `json:"totalDurationSeconds"`
	ErrorMessage         *string           `json:"errorMessage,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	StartedAt            *time.Time        `json:"startedAt,omitempty"`
	CompletedAt          *time.Time        `json:"completedAt,omitempty"`
}

// ResultFor returns the result entry for a stage index, or nil. Entries are
// append-only: entry i exists only once stage i has finished its analysis
// phase (completed, failed, or parked for approval).
func (j *PipelineJob) ResultFor(index int) *OperationResult {
	for i := range j.OperationResults {
		if j.OperationResults[i].OperationIndex == index {
			return &j.OperationResults[i]
		}
	}
	return nil
}

// CurrentOperation returns the operation kind at CurrentOperationIndex, or ""
// when the index is past the last stage.
func (j *PipelineJob) CurrentOperation() OperationKind {
	if j.CurrentOperationIndex >= len(j.SelectedOperations) {
		return ""
	}
	return j.SelectedOperations[j.CurrentOperationIndex]
}

// OperationResult is the per-stage outcome recorded on the pipeline job.
type OperationResult struct {
	Operation          OperationKind  `json:"operation"`
	OperationIndex     int            `json:"operationIndex"`
	Status             StageStatus    `json:"status"`
	OutputDocumentPath string         `json:"outputDocumentPath,omitempty"`
	OperationJobID     string         `json:"operationJobId,omitempty"`
	RequiresApproval   bool           `json:"requiresApproval"`
	ApprovalStatus     ApprovalStatus `json:"approvalStatus,omitempty"`
	ApprovedItems      []string       `json:"approvedItems,omitempty"`
	Metadata           ResultMetadata `json:"metadata"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
}

// ResultMetadata carries the per-stage accounting detail. It is a closed
// struct rather than an open map; fields not meaningful for an operation
// stay zero and are omitted from JSON.
type ResultMetadata struct {
	Provider        Provider `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
	CostUSD         float64  `json:"costUsd,omitempty"`
	PromptTokens    int      `json:"promptTokens,omitempty"`
	ResponseTokens  int      `json:"responseTokens,omitempty"`
	SectionsTotal   int      `json:"sectionsTotal,omitempty"`
	ItemsGenerated  int      `json:"itemsGenerated,omitempty"`
	ItemsApplied    int      `json:"itemsApplied,omitempty"`
	// TargetLanguage is set for translate stages only.
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// IntermediateDocument is the immutable artifact produced by one applied
// stage. Re-applying a stage appends a new record; nothing is overwritten.
type IntermediateDocument struct {
	ID             string        `json:"id"`
	PipelineJobID  string        `json:"pipelineJobId"`
	OperationIndex int           `json:"operationIndex"`
	OperationName  OperationKind `json:"operationName"`
	StoragePath    string        `json:"storagePath"`
	SizeBytes      int64         `json:"sizeBytes"`
	OperationJobID string        `json:"operationJobId,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}
