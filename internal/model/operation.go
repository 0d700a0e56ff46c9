package model

import "time"

// OperationJob is the sub-operation tracking record for one stage execution.
// It is owned exclusively by the stage that created it and holds the stage's
// fine-grained progress so the pipeline can be polled mid-stage.
type OperationJob struct {
	ID                 string             `json:"id"`
	PipelineJobID      string             `json:"pipelineJobId"`
	DocumentID         string             `json:"documentId"`
	Operation          OperationKind      `json:"operation"`
	Status             OperationJobStatus `json:"status"`
	CurrentSection     int                `json:"currentSection"`
	TotalSections      int                `json:"totalSections"`
	ProgressPercentage int                `json:"progressPercentage"`
	ProgressMessage    string             `json:"progressMessage,omitempty"`
	Suggestions        []Suggestion       `json:"suggestions,omitempty"`
	OutputPath         string             `json:"outputPath,omitempty"`
	CostUSD            float64            `json:"costUsd"`
	ErrorMessage       *string            `json:"errorMessage,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
}

// Suggestion is a single proposed text edit produced by a stage's analysis
// phase. Suggestions live only inside the OperationJob record; once the
// stage's output document is produced, only accepted text survives.
type Suggestion struct {
	ID           string `json:"id"`
	OriginalText string `json:"originalText"`
	ProposedText string `json:"proposedText"`
	Reason       string `json:"reason,omitempty"`
	// Category is operation-specific detail, e.g. the adaptation type or
	// the legal reference being updated.
	Category string `json:"category,omitempty"`
}
