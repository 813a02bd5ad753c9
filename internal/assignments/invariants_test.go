package assignments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInvariantsCleanState(t *testing.T) {
	rows := []CinemaAssignment{
		active(1, 10, RoleCashier),
		active(2, 10, RoleStaff),
		active(3, 10, RoleMarketing),
		active(2, 11, RoleStaff),
	}
	assert.Empty(t, CheckInvariants(rows))
}

func TestCheckInvariantsReportsBothKinds(t *testing.T) {
	closed := active(4, 12, RoleCashier)
	closed.IsActive = false
	rows := []CinemaAssignment{
		active(1, 10, RoleCashier),
		active(1, 11, RoleCashier),
		active(2, 20, RoleStaff),
		active(3, 20, RoleStaff),
		closed,
		active(4, 13, RoleCashier),
	}

	violations := CheckInvariants(rows)

	require.Len(t, violations, 2)
	assert.Equal(t, Violation{
		Kind:        ViolationCashierMultipleCinemas,
		RoleType:    RoleCashier,
		CinemaIDs:   []int64{10, 11},
		EmployeeIDs: []int64{1},
	}, violations[0])
	assert.Equal(t, Violation{
		Kind:        ViolationDuplicateRoleHolder,
		RoleType:    RoleStaff,
		CinemaIDs:   []int64{20},
		EmployeeIDs: []int64{2, 3},
	}, violations[1])
}

func TestCheckInvariantsIgnoresDuplicateRowsOfSameEmployee(t *testing.T) {
	rows := []CinemaAssignment{active(1, 10, RoleStaff), active(1, 10, RoleStaff)}
	assert.Empty(t, CheckInvariants(rows))
}
