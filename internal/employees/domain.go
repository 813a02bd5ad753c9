// Package employees manages partner employees and guards their lifecycle
// against live cinema assignments.
package employees

import (
	"errors"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
)

// Employee is shared with the allocator.
type Employee = assignments.Employee

// Errors returned by the employees package.
var (
	ErrActiveAssignments = errors.New("employees: employee still holds active cinema assignments")
	ErrNoChange          = errors.New("employees: nothing to change")
)

// ListFilters narrows ListEmployees.
type ListFilters struct {
	RoleType *assignments.RoleType
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}
