// Package jobs holds background task definitions and the Asynq worker.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeClaimsRefresh invalidates cached authorization claims after an
	// assignment change.
	TaskTypeClaimsRefresh = "authz:claims_refresh"
	// TaskTypeSessionSweep deletes expired session records.
	TaskTypeSessionSweep = "sessions:sweep"
)

// ClaimsRefreshPayload identifies whose cached claims to drop. Exactly one
// of RoleID or UserIDs is set: a role change fans out to the role's members,
// a membership change targets the one user.
type ClaimsRefreshPayload struct {
	RoleID  int64   `json:"role_id,omitempty"`
	UserIDs []int64 `json:"user_ids,omitempty"`
}

// NewClaimsRefreshTask constructs an Asynq task.
func NewClaimsRefreshTask(payload ClaimsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeClaimsRefresh, data), nil
}

// NewSessionSweepTask constructs the periodic sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionSweep, nil)
}
