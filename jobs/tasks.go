package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssignmentsAudit scans committed assignments and grants for broken
	// exclusivity rules.
	TaskAssignmentsAudit = "assignments:audit"
)

// Audit triggers recorded in the payload.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// AssignmentsAuditPayload describes one audit run.
type AssignmentsAuditPayload struct {
	Trigger string `json:"trigger"`
	// SkipGrants limits the run to assignment rows.
	SkipGrants bool `json:"skip_grants,omitempty"`
}

// NewAssignmentsAuditTask constructs an Asynq task for the audit job.
func NewAssignmentsAuditTask(payload AssignmentsAuditPayload) (*asynq.Task, error) {
	if payload.Trigger == "" {
		payload.Trigger = TriggerManual
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentsAudit, data), nil
}
