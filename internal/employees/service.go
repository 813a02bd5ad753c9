package employees

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

// RepositoryPort defines data access methods for employees. SetActive(false)
// and SetRole must refuse with ErrActiveAssignments when an active assignment
// exists at write time.
type RepositoryPort interface {
	GetEmployee(ctx context.Context, employeeID int64) (Employee, error)
	ListEmployees(ctx context.Context, filters ListFilters) ([]Employee, error)
	SetActive(ctx context.Context, employeeID int64, active bool) error
	SetRole(ctx context.Context, employeeID int64, role assignments.RoleType) error
}

// AssignmentGuard answers whether an employee may be deactivated or re-typed.
type AssignmentGuard interface {
	CanDeactivateOrRetype(ctx context.Context, employeeID int64) (assignments.Guard, error)
}

// Service handles employee lifecycle changes.
type Service struct {
	repo   RepositoryPort
	guard  AssignmentGuard
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, guard AssignmentGuard, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger}
}

// Get returns one employee.
func (s *Service) Get(ctx context.Context, employeeID int64) (Employee, error) {
	return s.repo.GetEmployee(ctx, employeeID)
}

// List returns employees matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Employee, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.ListEmployees(ctx, filters)
}

// Deactivate refuses while the employee holds any active assignment. The guard
// gives the blocking count; the repository repeats the check in the write.
func (s *Service) Deactivate(ctx context.Context, employeeID int64) (Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return Employee{}, err
	}
	if !emp.IsActive {
		return emp, ErrNoChange
	}
	if err := s.checkGuard(ctx, employeeID); err != nil {
		return Employee{}, err
	}
	if err := s.repo.SetActive(ctx, employeeID, false); err != nil {
		return Employee{}, err
	}
	emp.IsActive = false
	s.record(ctx, "employees.deactivate", employeeID, map[string]any{})
	return emp, nil
}

// Activate re-enables an employee. No guard applies.
func (s *Service) Activate(ctx context.Context, employeeID int64) (Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return Employee{}, err
	}
	if emp.IsActive {
		return emp, ErrNoChange
	}
	if err := s.repo.SetActive(ctx, employeeID, true); err != nil {
		return Employee{}, err
	}
	emp.IsActive = true
	s.record(ctx, "employees.activate", employeeID, map[string]any{})
	return emp, nil
}

// ChangeRole refuses while the employee holds any active assignment, since
// assignments snapshot the role they were made under.
func (s *Service) ChangeRole(ctx context.Context, employeeID int64, role assignments.RoleType) (Employee, error) {
	if !role.Valid() {
		return Employee{}, assignments.ErrInvalidRole
	}
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return Employee{}, err
	}
	if emp.RoleType == role {
		return emp, ErrNoChange
	}
	if err := s.checkGuard(ctx, employeeID); err != nil {
		return Employee{}, err
	}
	if err := s.repo.SetRole(ctx, employeeID, role); err != nil {
		return Employee{}, err
	}
	previous := emp.RoleType
	emp.RoleType = role
	s.record(ctx, "employees.change_role", employeeID, map[string]any{"from": previous, "to": role})
	return emp, nil
}

func (s *Service) checkGuard(ctx context.Context, employeeID int64) error {
	guard, err := s.guard.CanDeactivateOrRetype(ctx, employeeID)
	if err != nil {
		return err
	}
	if !guard.Allowed {
		return fmt.Errorf("%w: %d blocking", ErrActiveAssignments, guard.BlockingAssignments)
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, employeeID int64, meta map[string]any) {
	actor, _ := shared.OperatorFromContext(ctx)
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "employee",
		EntityID: strconv.FormatInt(employeeID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record employee audit", slog.String("action", action), slog.Any("error", err))
	}
}
