package permissions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/db"
)

// Repository implements Gateway on PostgreSQL. Grant and revoke each run as
// one transaction over the whole (cinema x code) batch.
type Repository struct {
	pool    *pgxpool.Pool
	starter db.TxStarter
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, starter: pool}
}

const grantSQL = `
	INSERT INTO employee_cinema_permissions (employee_id, cinema_id, permission_code, granted_at)
	SELECT $1, c.id, p.code, NOW()
	FROM unnest($2::bigint[]) AS c(id)
	JOIN employee_cinema_assignments a
	  ON a.employee_id = $1 AND a.cinema_id = c.id AND a.is_active
	CROSS JOIN unnest($3::text[]) AS p(code)
	ON CONFLICT (employee_id, cinema_id, permission_code) DO NOTHING`

// GetEmployeePermissions returns the grants of employeeID at cinemaIDs.
func (r *Repository) GetEmployeePermissions(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_id, cinema_id, permission_code, granted_at
		FROM employee_cinema_permissions
		WHERE employee_id = $1 AND cinema_id = ANY($2)
		ORDER BY permission_code, cinema_id`, employeeID, cinemaIDs)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// GrantPermissions upserts every (cinema, code) pair; existing rows are kept.
// Cinemas without an active assignment for the employee are skipped so no
// grant outlives its assignment.
func (r *Repository) GrantPermissions(ctx context.Context, employeeID int64, req BatchRequest) error {
	return db.WithTx(ctx, r.starter, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, grantSQL,
			employeeID, req.CinemaIDs, req.PermissionCodes)
		if err != nil {
			return fmt.Errorf("permissions: grant: %w", err)
		}
		return nil
	})
}

// RevokePermissions deletes every (cinema, code) pair; missing rows are ignored.
func (r *Repository) RevokePermissions(ctx context.Context, employeeID int64, req BatchRequest) error {
	return db.WithTx(ctx, r.starter, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM employee_cinema_permissions
			WHERE employee_id = $1 AND cinema_id = ANY($2) AND permission_code = ANY($3)`,
			employeeID, req.CinemaIDs, req.PermissionCodes)
		if err != nil {
			return fmt.Errorf("permissions: revoke: %w", err)
		}
		return nil
	})
}

// ListOrphanGrants returns grants whose (employee, cinema) pair has no active assignment.
func (r *Repository) ListOrphanGrants(ctx context.Context) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.employee_id, p.cinema_id, p.permission_code, p.granted_at
		FROM employee_cinema_permissions p
		WHERE NOT EXISTS (
			SELECT 1 FROM employee_cinema_assignments a
			WHERE a.employee_id = p.employee_id AND a.cinema_id = p.cinema_id AND a.is_active
		)
		ORDER BY p.employee_id, p.cinema_id, p.permission_code`)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	defer rows.Close()
	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.EmployeeID, &g.CinemaID, &g.PermissionCode, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("permissions: scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
