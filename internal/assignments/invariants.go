package assignments

import (
	"sort"
)

// Violation kinds detected by CheckInvariants.
const (
	ViolationCashierMultipleCinemas = "CASHIER_MULTIPLE_CINEMAS"
	ViolationDuplicateRoleHolder    = "DUPLICATE_ROLE_HOLDER"
)

// Violation describes committed state that breaks an exclusivity rule.
type Violation struct {
	Kind        string   `json:"kind"`
	RoleType    RoleType `json:"role_type"`
	CinemaIDs   []int64  `json:"cinema_ids"`
	EmployeeIDs []int64  `json:"employee_ids"`
}

// CheckInvariants scans active rows for cashiers with more than one cinema and
// for (cinema, role) slots held by more than one employee.
func CheckInvariants(rows []CinemaAssignment) []Violation {
	cashierCinemas := make(map[int64][]int64)
	slotHolders := make(map[slot][]int64)
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		if row.RoleType == RoleCashier {
			cashierCinemas[row.EmployeeID] = appendUnique(cashierCinemas[row.EmployeeID], row.CinemaID)
		}
		key := slot{cinemaID: row.CinemaID, role: row.RoleType}
		slotHolders[key] = appendUnique(slotHolders[key], row.EmployeeID)
	}

	var out []Violation
	for employeeID, cinemas := range cashierCinemas {
		if len(cinemas) <= 1 {
			continue
		}
		sortIDs(cinemas)
		out = append(out, Violation{
			Kind:        ViolationCashierMultipleCinemas,
			RoleType:    RoleCashier,
			CinemaIDs:   cinemas,
			EmployeeIDs: []int64{employeeID},
		})
	}
	for key, holders := range slotHolders {
		if len(holders) <= 1 {
			continue
		}
		sortIDs(holders)
		out = append(out, Violation{
			Kind:        ViolationDuplicateRoleHolder,
			RoleType:    key.role,
			CinemaIDs:   []int64{key.cinemaID},
			EmployeeIDs: holders,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].CinemaIDs[0] != out[j].CinemaIDs[0] {
			return out[i].CinemaIDs[0] < out[j].CinemaIDs[0]
		}
		if out[i].RoleType != out[j].RoleType {
			return out[i].RoleType < out[j].RoleType
		}
		return out[i].EmployeeIDs[0] < out[j].EmployeeIDs[0]
	})
	return out
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
