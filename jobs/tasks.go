package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired session rows.
	TaskSessionsPurge = "sessions:purge"
	// TaskPermissionWarmup pre-resolves permission sets for active users.
	TaskPermissionWarmup = "rbac:warmup"
)

// PermissionWarmupPayload bounds how many users a warmup run touches.
type PermissionWarmupPayload struct {
	Limit int `json:"limit"`
}

// NewSessionsPurgeTask constructs the purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// NewPermissionWarmupTask constructs the warmup task.
func NewPermissionWarmupTask(payload PermissionWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionWarmup, data), nil
}
