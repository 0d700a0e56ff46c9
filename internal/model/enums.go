package model

// Operation kinds
type OperationKind string

const (
	OperationAdjust    OperationKind = "adjust"
	OperationUpdate    OperationKind = "update"
	OperationImprove   OperationKind = "improve"
	OperationAdapt     OperationKind = "adapt"
	OperationTranslate OperationKind = "translate"
)

var ValidOperations = []OperationKind{
	OperationAdjust, OperationUpdate, OperationImprove,
	OperationAdapt, OperationTranslate,
}

// IsValid reports whether k is a known operation kind.
func (k OperationKind) IsValid() bool {
	for _, v := range ValidOperations {
		if k == v {
			return true
		}
	}
	return false
}

// RequiresApproval reports whether suggestions from this operation must be
// accepted by a human before the document is rewritten. Translation rewrites
// the whole document and is applied directly.
func (k OperationKind) RequiresApproval() bool {
	return k != OperationTranslate
}

// Pipeline job status
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusRunning          JobStatus = "running"
	JobStatusPaused           JobStatus = "paused"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusApplyingChanges  JobStatus = "applying_changes"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusCancelled        JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Cancellable reports whether a cancellation request is accepted in this
// state. Jobs mid-apply cannot be cancelled.
func (s JobStatus) Cancellable() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusPaused
}

// Per-stage result status
type StageStatus string

const (
	StageStatusCompleted        StageStatus = "completed"
	StageStatusFailed           StageStatus = "failed"
	StageStatusAwaitingApproval StageStatus = "awaiting_approval"
)

// Approval status of a stage's suggestions
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Sub-operation job status
type OperationJobStatus string

const (
	OperationJobRunning   OperationJobStatus = "running"
	OperationJobCompleted OperationJobStatus = "completed"
	OperationJobFailed    OperationJobStatus = "failed"
)

// Provider families
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

var ValidProviders = []Provider{ProviderOpenAI, ProviderGemini}

// Adaptation audience targets
type Audience string

const (
	AudienceGeneral   Audience = "general"
	AudienceExpert    Audience = "expert"
	AudienceBeginner  Audience = "beginner"
	AudienceExecutive Audience = "executive"
	AudienceChildren  Audience = "children"
)

// Writing tone targets
type Tone string

const (
	ToneFormal         Tone = "formal"
	ToneNeutral        Tone = "neutral"
	ToneConversational Tone = "conversational"
)
