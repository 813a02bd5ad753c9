package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	jobmetrics "github.com/hieuvqhe/SEP490-G163-sub001/internal/jobs"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/permissions"
)

// FindingOrphanGrant marks a grant whose (employee, cinema) pair has no active
// assignment.
const FindingOrphanGrant = "ORPHAN_GRANT"

// ActiveAssignmentSource lists every active assignment row.
type ActiveAssignmentSource interface {
	ListActiveAssignments(ctx context.Context, roleFilter *assignments.RoleType) ([]assignments.CinemaAssignment, error)
}

// OrphanGrantSource lists grants left behind by closed assignments.
type OrphanGrantSource interface {
	ListOrphanGrants(ctx context.Context) ([]permissions.Grant, error)
}

// FindingRecorder counts findings per kind.
type FindingRecorder interface {
	AddInvariantFindings(kind string, count int)
}

// AuditReport summarises one run.
type AuditReport struct {
	Violations   []assignments.Violation
	OrphanGrants []permissions.Grant
}

// Findings returns the total number of problems found.
func (r AuditReport) Findings() int {
	return len(r.Violations) + len(r.OrphanGrants)
}

// AssignmentsAuditJob checks committed state against the allocator rules.
type AssignmentsAuditJob struct {
	Assignments ActiveAssignmentSource
	Grants      OrphanGrantSource
	Findings    FindingRecorder
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewAssignmentsAuditJob initialises the audit handler.
func NewAssignmentsAuditJob(assignmentSource ActiveAssignmentSource, grants OrphanGrantSource, findings FindingRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AssignmentsAuditJob {
	return &AssignmentsAuditJob{
		Assignments: assignmentSource,
		Grants:      grants,
		Findings:    findings,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle executes the audit for an Asynq task.
func (j *AssignmentsAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Assignments == nil {
		return errors.New("assignments audit: handler not configured")
	}
	var payload AssignmentsAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("assignments audit: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run performs one audit pass and reports what it found. Findings are not
// errors; only failed reads fail the run.
func (j *AssignmentsAuditJob) Run(ctx context.Context, payload AssignmentsAuditPayload) (report AuditReport, resultErr error) {
	tracker := j.Metrics.Track(TaskAssignmentsAudit)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("job", TaskAssignmentsAudit), slog.String("trigger", payload.Trigger))
	logger.Info("starting assignments audit")

	rows, err := j.Assignments.ListActiveAssignments(ctx, nil)
	if err != nil {
		logger.Error("list active assignments", slog.Any("error", err))
		return report, fmt.Errorf("assignments audit: list assignments: %w", err)
	}
	report.Violations = assignments.CheckInvariants(rows)
	counts := make(map[string]int)
	for _, v := range report.Violations {
		counts[v.Kind]++
		logger.Warn("assignment invariant violated",
			slog.String("kind", v.Kind),
			slog.String("role_type", string(v.RoleType)),
			slog.Any("cinema_ids", v.CinemaIDs),
			slog.Any("employee_ids", v.EmployeeIDs),
		)
	}

	if !payload.SkipGrants && j.Grants != nil {
		orphans, err := j.Grants.ListOrphanGrants(ctx)
		if err != nil {
			logger.Error("list orphan grants", slog.Any("error", err))
			return report, fmt.Errorf("assignments audit: list orphan grants: %w", err)
		}
		report.OrphanGrants = orphans
		for _, g := range orphans {
			logger.Warn("grant without active assignment",
				slog.Int64("employee_id", g.EmployeeID),
				slog.Int64("cinema_id", g.CinemaID),
				slog.String("permission_code", g.PermissionCode),
			)
		}
		counts[FindingOrphanGrant] = len(orphans)
	}

	if j.Findings != nil {
		for kind, n := range counts {
			j.Findings.AddInvariantFindings(kind, n)
		}
	}
	logger.Info("assignments audit finished",
		slog.Int("active_rows", len(rows)),
		slog.Int("findings", report.Findings()),
	)
	return report, nil
}

func (j *AssignmentsAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
