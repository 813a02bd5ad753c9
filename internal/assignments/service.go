package assignments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

// OutcomeStatus reports how a single cinema fared in an assign or unassign call.
type OutcomeStatus string

const (
	StatusOK       OutcomeStatus = "OK"
	StatusConflict OutcomeStatus = "CONFLICT"
	StatusFailed   OutcomeStatus = "FAILED"
)

// Operation names a commit half.
type Operation string

const (
	OpAssign   Operation = "ASSIGN"
	OpUnassign Operation = "UNASSIGN"
)

// ItemOutcome is the gateway's per-cinema answer.
type ItemOutcome struct {
	CinemaID int64         `json:"cinema_id"`
	Status   OutcomeStatus `json:"status"`
	Message  string        `json:"message,omitempty"`
}

// Gateway is the assignment API the allocator commits against.
type Gateway interface {
	ListCinemaAssignments(ctx context.Context, employeeID int64) ([]CinemaAssignment, error)
	ListActiveAssignments(ctx context.Context, role *RoleType) ([]CinemaAssignment, error)
	AssignCinemas(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]ItemOutcome, error)
	UnassignCinemas(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]ItemOutcome, error)
}

// EmployeeDirectory resolves employees by id.
type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, employeeID int64) (Employee, error)
}

// Invalidator drops cached per-employee state after a successful commit.
type Invalidator interface {
	Invalidate(ctx context.Context, employeeID int64) error
}

// MetricsRecorder counts per-cinema outcomes.
type MetricsRecorder interface {
	ObserveAssignment(op, status string)
}

// CommitRequest is the pair of lists sent to Commit.
type CommitRequest struct {
	EmployeeID int64   `json:"employee_id"`
	ToAssign   []int64 `json:"to_assign"`
	ToUnassign []int64 `json:"to_unassign"`
}

// Empty reports whether the request carries no cinema.
func (r CommitRequest) Empty() bool {
	return len(r.ToAssign) == 0 && len(r.ToUnassign) == 0
}

// Outcome is one cinema's result inside a CommitResult.
type Outcome struct {
	Op       Operation     `json:"op"`
	CinemaID int64         `json:"cinema_id"`
	Status   OutcomeStatus `json:"status"`
	Message  string        `json:"message,omitempty"`
}

// CommitResult collects the per-cinema outcomes of both calls.
type CommitResult struct {
	RequestID  string    `json:"request_id"`
	EmployeeID int64     `json:"employee_id"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Succeeded reports whether every cinema came back OK.
func (r CommitResult) Succeeded() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusOK {
			return false
		}
	}
	return true
}

// NeedsResync is true when the server refused any cinema as a conflict; the
// caller must reload the employee's assignments before proposing again.
func (r CommitResult) NeedsResync() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusConflict {
			return true
		}
	}
	return false
}

// Retry returns the FAILED subset as a new request.
func (r CommitResult) Retry() CommitRequest {
	req := CommitRequest{EmployeeID: r.EmployeeID, ToAssign: []int64{}, ToUnassign: []int64{}}
	for _, o := range r.Outcomes {
		if o.Status != StatusFailed {
			continue
		}
		switch o.Op {
		case OpAssign:
			req.ToAssign = append(req.ToAssign, o.CinemaID)
		case OpUnassign:
			req.ToUnassign = append(req.ToUnassign, o.CinemaID)
		}
	}
	return req
}

// Count returns the number of outcomes with the given status.
func (r CommitResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Service orchestrates proposals and commits against the assignment gateway.
type Service struct {
	gateway     Gateway
	directory   EmployeeDirectory
	audit       shared.AuditRecorder
	logger      *slog.Logger
	invalidator Invalidator
	metrics     MetricsRecorder
}

// NewService constructs the assignment service.
func NewService(gateway Gateway, directory EmployeeDirectory, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gateway: gateway, directory: directory, audit: audit, logger: logger}
}

// SetInvalidator wires the cache dropped after a successful commit.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// SetMetrics wires the outcome counter.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Propose loads the employee, their current cinemas and the conflict index for
// their role, then partitions desired into assign / unassign / rejected.
func (s *Service) Propose(ctx context.Context, employeeID int64, desired []int64) (Proposal, error) {
	emp, err := s.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		return Proposal{}, err
	}
	if !emp.RoleType.Valid() {
		return Proposal{}, fmt.Errorf("%w: %q", ErrInvalidRole, emp.RoleType)
	}

	var (
		current []CinemaAssignment
		active  []CinemaAssignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.gateway.ListCinemaAssignments(gctx, employeeID)
		if err != nil {
			return fmt.Errorf("assignments: list current: %w", err)
		}
		current = rows
		return nil
	})
	g.Go(func() error {
		role := emp.RoleType
		rows, err := s.gateway.ListActiveAssignments(gctx, &role)
		if err != nil {
			return fmt.Errorf("assignments: list active: %w", err)
		}
		active = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return Proposal{}, err
	}

	return Propose(emp, ActiveCinemaIDs(current), desired, NewConflictIndex(active)), nil
}

// Commit unassigns first, freeing a cashier's slot, then assigns. Every cinema is
// an independent unit; a call-level error marks every cinema of that call FAILED.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	req.ToAssign = dedupe(req.ToAssign)
	req.ToUnassign = dedupe(req.ToUnassign)
	if req.Empty() {
		return CommitResult{}, ErrNothingToApply
	}

	result := CommitResult{
		RequestID:  uuid.NewString(),
		EmployeeID: req.EmployeeID,
		Outcomes:   make([]Outcome, 0, len(req.ToAssign)+len(req.ToUnassign)),
	}
	logger := s.logger.With(slog.String("request_id", result.RequestID), slog.Int64("employee_id", req.EmployeeID))

	if len(req.ToUnassign) > 0 {
		items, err := s.gateway.UnassignCinemas(ctx, req.EmployeeID, req.ToUnassign)
		if err != nil {
			logger.Warn("unassign call failed", slog.Any("error", err))
		}
		result.Outcomes = append(result.Outcomes, collect(OpUnassign, req.ToUnassign, items, err)...)
	}
	if len(req.ToAssign) > 0 {
		items, err := s.gateway.AssignCinemas(ctx, req.EmployeeID, req.ToAssign)
		if err != nil {
			logger.Warn("assign call failed", slog.Any("error", err))
		}
		result.Outcomes = append(result.Outcomes, collect(OpAssign, req.ToAssign, items, err)...)
	}

	for _, o := range result.Outcomes {
		if s.metrics != nil {
			s.metrics.ObserveAssignment(string(o.Op), string(o.Status))
		}
	}

	ok := result.Count(StatusOK)
	if ok > 0 {
		s.recordAudit(ctx, result, logger)
		if s.invalidator != nil {
			if err := s.invalidator.Invalidate(ctx, req.EmployeeID); err != nil {
				logger.Warn("invalidate employee cache", slog.Any("error", err))
			}
		}
	}
	logger.Info("assignment commit",
		slog.Int("ok", ok),
		slog.Int("conflict", result.Count(StatusConflict)),
		slog.Int("failed", result.Count(StatusFailed)))
	return result, nil
}

// CanDeactivateOrRetype answers the lifecycle guard from server truth.
func (s *Service) CanDeactivateOrRetype(ctx context.Context, employeeID int64) (Guard, error) {
	emp, err := s.directory.GetEmployee(ctx, employeeID)
	if err != nil {
		return Guard{}, err
	}
	rows, err := s.gateway.ListCinemaAssignments(ctx, employeeID)
	if err != nil {
		return Guard{}, fmt.Errorf("assignments: list current: %w", err)
	}
	return CanDeactivateOrRetype(emp, rows), nil
}

// ListAssignments returns every assignment row of the employee, active or closed.
func (s *Service) ListAssignments(ctx context.Context, employeeID int64) ([]CinemaAssignment, error) {
	if _, err := s.directory.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.gateway.ListCinemaAssignments(ctx, employeeID)
}

// ListActive returns the active assignments of every employee, optionally for one role.
func (s *Service) ListActive(ctx context.Context, role *RoleType) ([]CinemaAssignment, error) {
	return s.gateway.ListActiveAssignments(ctx, role)
}

func (s *Service) recordAudit(ctx context.Context, result CommitResult, logger *slog.Logger) {
	actor, _ := shared.OperatorFromContext(ctx)
	var assigned, unassigned []int64
	for _, o := range result.Outcomes {
		if o.Status != StatusOK {
			continue
		}
		if o.Op == OpAssign {
			assigned = append(assigned, o.CinemaID)
		} else {
			unassigned = append(unassigned, o.CinemaID)
		}
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "assignments.commit",
		Entity:   "employee",
		EntityID: strconv.FormatInt(result.EmployeeID, 10),
		Meta: map[string]any{
			"request_id": result.RequestID,
			"assigned":   assigned,
			"unassigned": unassigned,
		},
	})
	if err != nil {
		logger.Warn("record assignment audit", slog.Any("error", err))
	}
}

func collect(op Operation, ids []int64, items []ItemOutcome, callErr error) []Outcome {
	out := make([]Outcome, 0, len(ids))
	if callErr != nil {
		for _, id := range ids {
			out = append(out, Outcome{Op: op, CinemaID: id, Status: StatusFailed, Message: callErr.Error()})
		}
		return out
	}
	byID := make(map[int64]ItemOutcome, len(items))
	for _, item := range items {
		byID[item.CinemaID] = item
	}
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			out = append(out, Outcome{Op: op, CinemaID: id, Status: StatusFailed, Message: "no outcome reported"})
			continue
		}
		status := item.Status
		switch status {
		case StatusOK, StatusConflict, StatusFailed:
		default:
			status = StatusFailed
		}
		out = append(out, Outcome{Op: op, CinemaID: id, Status: status, Message: item.Message})
	}
	return out
}
