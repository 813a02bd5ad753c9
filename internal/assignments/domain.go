package assignments

import (
	"errors"
	"strings"
	"time"
)

// RoleType is the fixed category governing an employee's exclusivity rules.
type RoleType string

const (
	RoleStaff     RoleType = "STAFF"
	RoleMarketing RoleType = "MARKETING"
	RoleCashier   RoleType = "CASHIER"
)

// ParseRoleType normalises raw input into a RoleType.
func ParseRoleType(raw string) (RoleType, error) {
	role := RoleType(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Valid reports whether r is a known role type.
func (r RoleType) Valid() bool {
	switch r {
	case RoleStaff, RoleMarketing, RoleCashier:
		return true
	}
	return false
}

// Errors returned by the assignments package.
var (
	ErrNotFound       = errors.New("assignments: not found")
	ErrInvalidRole    = errors.New("assignments: invalid role type")
	ErrNothingToApply = errors.New("assignments: nothing to apply")
)

// Employee is a partner employee that can be assigned to cinemas.
type Employee struct {
	ID       int64    `json:"id"`
	FullName string   `json:"full_name"`
	RoleType RoleType `json:"role_type"`
	IsActive bool     `json:"is_active"`
}

// Cinema is a site of the chain, as listed with its assignments.
type Cinema struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	District string `json:"district"`
	IsActive bool   `json:"is_active"`
}

// CinemaAssignment links an employee to a cinema. Rows are soft-closed, never deleted.
type CinemaAssignment struct {
	EmployeeID   int64      `json:"employee_id"`
	EmployeeName string     `json:"employee_name,omitempty"`
	CinemaID     int64      `json:"cinema_id"`
	Cinema       *Cinema    `json:"cinema,omitempty"`
	RoleType     RoleType   `json:"role_type"`
	IsActive     bool       `json:"is_active"`
	AssignedAt   time.Time  `json:"assigned_at"`
	UnassignedAt *time.Time `json:"unassigned_at,omitempty"`
}

// ActiveCinemaIDs returns the cinema ids of the active rows, in input order.
func ActiveCinemaIDs(rows []CinemaAssignment) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if row.IsActive {
			ids = append(ids, row.CinemaID)
		}
	}
	return ids
}

// CountActive returns the number of active rows.
func CountActive(rows []CinemaAssignment) int {
	n := 0
	for _, row := range rows {
		if row.IsActive {
			n++
		}
	}
	return n
}
