package models

import "time"

// Operation lifecycle states.
const (
	OperationPending    = "pending"
	OperationDispatched = "dispatched"
	OperationRunning    = "running"
	OperationSucceeded  = "succeeded"
	OperationFailed     = "failed"
)

// Operation is one dispatched project action, journaled in Postgres and
// executed out of process by the executor service.
type Operation struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Action      string `json:"action"`
	Status      string `json:"status"`

	ComposeFilePath string   `json:"compose_file_path,omitempty"`
	Services        []string `json:"services,omitempty"`

	RequestedBy string `json:"requested_by,omitempty"`
	Error       string `json:"error,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the operation has reached a final state.
func (o *Operation) Terminal() bool {
	return o.Status == OperationSucceeded || o.Status == OperationFailed
}

// OperationRequest is the body of POST /projects/:name/actions.
type OperationRequest struct {
	Action string `json:"action" validate:"required,min=1,max=32,printascii"`
	// Services optionally restricts the action to a subset of services.
	Services []string `json:"services,omitempty" validate:"omitempty,dive,min=1,max=128,printascii"`
}

// OperationStatusUpdate is the executor's callback body reporting progress
// on a dispatched operation.
type OperationStatusUpdate struct {
	Status   string `json:"status" validate:"required,oneof=running succeeded failed"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty" validate:"omitempty,max=4096"`
}
