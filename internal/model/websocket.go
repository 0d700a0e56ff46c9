package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeStage    = "stage"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is a live progress update for the running stage.
type WSProgressMessage struct {
	Type           string        `json:"type"`
	JobID          string        `json:"jobId"`
	Status         JobStatus     `json:"status"`
	Operation      OperationKind `json:"operation,omitempty"`
	OperationIndex int           `json:"operationIndex"`
	Progress       int           `json:"progress"`
	Message        string        `json:"message,omitempty"`
}

// WSStageMessage announces a stage transition (finished, awaiting approval,
// applied).
type WSStageMessage struct {
	Type           string        `json:"type"`
	JobID          string        `json:"jobId"`
	Status         JobStatus     `json:"status"`
	Operation      OperationKind `json:"operation"`
	OperationIndex int           `json:"operationIndex"`
}

// WSCompleteMessage announces pipeline completion.
type WSCompleteMessage struct {
	Type              string `json:"type"`
	JobID             string `json:"jobId"`
	FinalDocumentPath string `json:"finalDocumentPath"`
}

// WSErrorMessage announces a pipeline failure.
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
