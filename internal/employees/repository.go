package employees

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool    *pgxpool.Pool
	starter db.TxStarter
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, starter: pool}
}

// GetEmployee returns one employee or assignments.ErrNotFound.
func (r *Repository) GetEmployee(ctx context.Context, employeeID int64) (Employee, error) {
	var (
		emp  Employee
		role string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, role_type, is_active
		FROM employees
		WHERE id = $1`, employeeID).Scan(&emp.ID, &emp.FullName, &role, &emp.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, assignments.ErrNotFound
		}
		return Employee{}, err
	}
	emp.RoleType = assignments.RoleType(role)
	return emp, nil
}

// ListEmployees returns employees matching filters, ordered by name.
func (r *Repository) ListEmployees(ctx context.Context, filters ListFilters) ([]Employee, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filters.RoleType != nil {
		conditions = append(conditions, fmt.Sprintf("role_type = $%d", argPos))
		args = append(args, string(*filters.RoleType))
		argPos++
	}
	if filters.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *filters.IsActive)
		argPos++
	}
	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("full_name ILIKE $%d", argPos))
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT id, full_name, role_type, is_active
		FROM employees
		%s
		ORDER BY full_name, id
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		var (
			emp  Employee
			role string
		)
		if err := rows.Scan(&emp.ID, &emp.FullName, &role, &emp.IsActive); err != nil {
			return nil, err
		}
		emp.RoleType = assignments.RoleType(role)
		out = append(out, emp)
	}
	return out, rows.Err()
}

// SetActive flips the active flag. Deactivation is refused with
// ErrActiveAssignments while any active assignment exists.
func (r *Repository) SetActive(ctx context.Context, employeeID int64, active bool) error {
	if active {
		tag, err := r.pool.Exec(ctx, `UPDATE employees SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, employeeID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return assignments.ErrNotFound
		}
		return nil
	}
	return r.guardedUpdate(ctx, employeeID, "is_active = FALSE")
}

// SetRole changes the role type. It is refused with ErrActiveAssignments while
// any active assignment exists, since rows snapshot the role they were made under.
func (r *Repository) SetRole(ctx context.Context, employeeID int64, role assignments.RoleType) error {
	return r.guardedUpdate(ctx, employeeID, "role_type = $2", string(role))
}

// guardedUpdate locks the employee row, then updates it only when no active
// assignment exists. An assign holds FOR SHARE on the same row, so the two
// serialise and the NOT EXISTS sees any assignment committed while waiting.
func (r *Repository) guardedUpdate(ctx context.Context, employeeID int64, set string, args ...interface{}) error {
	return db.WithTxOptions(ctx, r.starter, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM employees WHERE id = $1 FOR UPDATE`, employeeID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return assignments.ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE employees SET `+set+`, updated_at = NOW()
			WHERE id = $1 AND NOT EXISTS (
				SELECT 1 FROM employee_cinema_assignments
				WHERE employee_id = $1 AND is_active
			)`, append([]interface{}{employeeID}, args...)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrActiveAssignments
		}
		return nil
	})
}
