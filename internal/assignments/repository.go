package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements Gateway on PostgreSQL. Each cinema runs in its own
// transaction so one refusal never rolls back the others.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

const selectAssignments = `
	SELECT a.employee_id, e.full_name, a.cinema_id, c.name, c.city, c.district, c.is_active,
	       a.role_type, a.is_active, a.assigned_at, a.unassigned_at
	FROM employee_cinema_assignments a
	JOIN employees e ON e.id = a.employee_id
	JOIN cinemas c ON c.id = a.cinema_id
`

// ListCinemaAssignments returns every row of one employee, newest first.
func (r *Repository) ListCinemaAssignments(ctx context.Context, employeeID int64) ([]CinemaAssignment, error) {
	rows, err := r.db.Query(ctx, selectAssignments+`
	WHERE a.employee_id = $1
	ORDER BY a.is_active DESC, a.assigned_at DESC, a.cinema_id`, employeeID)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// ListActiveAssignments returns all active rows, optionally for one role.
func (r *Repository) ListActiveAssignments(ctx context.Context, role *RoleType) ([]CinemaAssignment, error) {
	var filter *string
	if role != nil {
		value := string(*role)
		filter = &value
	}
	rows, err := r.db.Query(ctx, selectAssignments+`
	WHERE a.is_active AND ($1::text IS NULL OR a.role_type = $1)
	ORDER BY a.cinema_id, a.role_type, a.assigned_at`, filter)
	if err != nil {
		return nil, err
	}
	return scanAssignments(rows)
}

// AssignCinemas opens one active row per cinema, snapshotting the employee's role.
func (r *Repository) AssignCinemas(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]ItemOutcome, error) {
	out := make([]ItemOutcome, 0, len(cinemaIDs))
	for _, cinemaID := range cinemaIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, r.assignOne(ctx, employeeID, cinemaID))
	}
	return out, nil
}

// assignOne holds FOR SHARE on the employee row so a concurrent deactivate or
// retype either waits for this insert or makes it fail.
func (r *Repository) assignOne(ctx context.Context, employeeID, cinemaID int64) ItemOutcome {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO employee_cinema_assignments (employee_id, cinema_id, role_type, is_active, assigned_at)
			SELECT e.id, c.id, e.role_type, TRUE, NOW()
			FROM employees e, cinemas c
			WHERE e.id = $1 AND c.id = $2 AND e.is_active AND c.is_active
			FOR SHARE OF e`, employeeID, cinemaID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return outcomeFor(cinemaID, err)
}

// UnassignCinemas soft-closes the active row of each cinema and drops the
// grants that hung off it.
func (r *Repository) UnassignCinemas(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]ItemOutcome, error) {
	out := make([]ItemOutcome, 0, len(cinemaIDs))
	for _, cinemaID := range cinemaIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, r.unassignOne(ctx, employeeID, cinemaID))
	}
	return out, nil
}

func (r *Repository) unassignOne(ctx context.Context, employeeID, cinemaID int64) ItemOutcome {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE employee_cinema_assignments
			SET is_active = FALSE, unassigned_at = NOW()
			WHERE employee_id = $1 AND cinema_id = $2 AND is_active`, employeeID, cinemaID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errNotAssigned
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM employee_cinema_permissions
			WHERE employee_id = $1 AND cinema_id = $2`, employeeID, cinemaID)
		return err
	})
	return outcomeFor(cinemaID, err)
}

var errNotAssigned = errors.New("assignments: cinema not assigned")

func outcomeFor(cinemaID int64, err error) ItemOutcome {
	if err == nil {
		return ItemOutcome{CinemaID: cinemaID, Status: StatusOK}
	}
	if constraint, ok := db.UniqueViolation(err); ok {
		return ItemOutcome{CinemaID: cinemaID, Status: StatusConflict, Message: constraint}
	}
	switch {
	case errors.Is(err, errNotAssigned):
		return ItemOutcome{CinemaID: cinemaID, Status: StatusConflict, Message: err.Error()}
	case errors.Is(err, ErrNotFound):
		return ItemOutcome{CinemaID: cinemaID, Status: StatusFailed, Message: "employee or cinema missing or inactive"}
	default:
		return ItemOutcome{CinemaID: cinemaID, Status: StatusFailed, Message: err.Error()}
	}
}

func scanAssignments(rows pgx.Rows) ([]CinemaAssignment, error) {
	defer rows.Close()
	var out []CinemaAssignment
	for rows.Next() {
		var scan assignmentScan
		if err := rows.Scan(scan.dest()...); err != nil {
			return nil, fmt.Errorf("assignments: scan: %w", err)
		}
		out = append(out, scan.row())
	}
	return out, rows.Err()
}

// assignmentScan holds one selectAssignments row in column order.
type assignmentScan struct {
	employeeID   int64
	employeeName string
	cinema       Cinema
	role         string
	isActive     bool
	assignedAt   time.Time
	unassignedAt pgtype.Timestamptz
}

func (s *assignmentScan) dest() []any {
	return []any{
		&s.employeeID, &s.employeeName,
		&s.cinema.ID, &s.cinema.Name, &s.cinema.City, &s.cinema.District, &s.cinema.IsActive,
		&s.role, &s.isActive, &s.assignedAt, &s.unassignedAt,
	}
}

func (s *assignmentScan) row() CinemaAssignment {
	cinema := s.cinema
	row := CinemaAssignment{
		EmployeeID:   s.employeeID,
		EmployeeName: s.employeeName,
		CinemaID:     cinema.ID,
		Cinema:       &cinema,
		RoleType:     RoleType(s.role),
		IsActive:     s.isActive,
		AssignedAt:   s.assignedAt,
	}
	if s.unassignedAt.Valid {
		t := s.unassignedAt.Time
		row.UnassignedAt = &t
	}
	return row
}
