package assignments

// Rejection reasons reported in Proposal.Rejected.
const (
	ReasonConflictingRole  = "CONFLICTING_ROLE_ASSIGNMENT"
	ReasonCashierLimit     = "CASHIER_SINGLE_CINEMA"
	ReasonEmployeeInactive = "EMPLOYEE_INACTIVE"
)

// Holder identifies the employee already occupying a (cinema, role) slot.
type Holder struct {
	EmployeeID int64  `json:"employee_id"`
	FullName   string `json:"full_name,omitempty"`
}

// Rejection is a desired cinema the allocator refused to assign.
type Rejection struct {
	CinemaID int64   `json:"cinema_id"`
	Reason   string  `json:"reason"`
	HeldBy   *Holder `json:"held_by,omitempty"`
}

// Proposal is the three-way partition of an assignment edit.
type Proposal struct {
	EmployeeID int64       `json:"employee_id"`
	RoleType   RoleType    `json:"role_type"`
	ToAssign   []int64     `json:"to_assign"`
	ToUnassign []int64     `json:"to_unassign"`
	Rejected   []Rejection `json:"rejected"`
}

// Empty reports whether committing the proposal would change nothing.
func (p Proposal) Empty() bool {
	return len(p.ToAssign) == 0 && len(p.ToUnassign) == 0
}

// Apply returns the active cinema set that results from committing p on top of current.
func (p Proposal) Apply(current []int64) []int64 {
	drop := toSet(p.ToUnassign)
	out := make([]int64, 0, len(current)+len(p.ToAssign))
	seen := make(map[int64]struct{}, len(current)+len(p.ToAssign))
	for _, id := range current {
		if _, gone := drop[id]; gone {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range p.ToAssign {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type slot struct {
	cinemaID int64
	role     RoleType
}

// ConflictIndex maps every occupied (cinema, role) slot to its active assignment.
type ConflictIndex struct {
	holders map[slot]CinemaAssignment
}

// NewConflictIndex indexes the active rows. The first row wins when the input
// already violates exclusivity.
func NewConflictIndex(rows []CinemaAssignment) ConflictIndex {
	holders := make(map[slot]CinemaAssignment, len(rows))
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		key := slot{cinemaID: row.CinemaID, role: row.RoleType}
		if _, taken := holders[key]; taken {
			continue
		}
		holders[key] = row
	}
	return ConflictIndex{holders: holders}
}

// Holder returns the active assignment occupying (cinemaID, role).
func (ix ConflictIndex) Holder(cinemaID int64, role RoleType) (CinemaAssignment, bool) {
	row, ok := ix.holders[slot{cinemaID: cinemaID, role: role}]
	return row, ok
}

// Len returns the number of occupied slots.
func (ix ConflictIndex) Len() int {
	return len(ix.holders)
}

func (ix ConflictIndex) conflict(emp Employee, cinemaID int64) (*Holder, bool) {
	row, ok := ix.Holder(cinemaID, emp.RoleType)
	if !ok || row.EmployeeID == emp.ID {
		return nil, false
	}
	return &Holder{EmployeeID: row.EmployeeID, FullName: row.EmployeeName}, true
}

// Propose computes the assignment changes needed to move emp from current to
// desired. It never returns a proposal that breaks (cinema, role) exclusivity
// against index, and a cashier never ends up with more than one cinema.
func Propose(emp Employee, current, desired []int64, index ConflictIndex) Proposal {
	current = dedupe(current)
	desired = dedupe(desired)
	p := Proposal{
		EmployeeID: emp.ID,
		RoleType:   emp.RoleType,
		ToAssign:   []int64{},
		ToUnassign: []int64{},
		Rejected:   []Rejection{},
	}
	if emp.RoleType == RoleCashier && len(desired) > 1 {
		proposeCashier(&p, emp, current, desired, index)
		return p
	}

	currentSet := toSet(current)
	desiredSet := toSet(desired)
	for _, id := range current {
		if _, keep := desiredSet[id]; !keep {
			p.ToUnassign = append(p.ToUnassign, id)
		}
	}
	for _, id := range desired {
		if _, held := currentSet[id]; held {
			continue
		}
		if rejection, refused := refusal(emp, id, index); refused {
			p.Rejected = append(p.Rejected, rejection)
			continue
		}
		p.ToAssign = append(p.ToAssign, id)
	}
	return p
}

// proposeCashier keeps the most recent acceptable selection: a later pick
// supersedes an earlier one.
func proposeCashier(p *Proposal, emp Employee, current, desired []int64, index ConflictIndex) {
	currentSet := toSet(current)
	var winner int64
	found := false
	for i := len(desired) - 1; i >= 0; i-- {
		id := desired[i]
		if _, held := currentSet[id]; held {
			winner, found = id, true
			break
		}
		if _, refused := refusal(emp, id, index); refused {
			continue
		}
		winner, found = id, true
		break
	}

	for _, id := range current {
		if found && id == winner {
			continue
		}
		p.ToUnassign = append(p.ToUnassign, id)
	}
	for _, id := range desired {
		if found && id == winner {
			if _, held := currentSet[id]; !held {
				p.ToAssign = append(p.ToAssign, id)
			}
			continue
		}
		if _, held := currentSet[id]; held {
			continue
		}
		if rejection, refused := refusal(emp, id, index); refused {
			p.Rejected = append(p.Rejected, rejection)
			continue
		}
		p.Rejected = append(p.Rejected, Rejection{CinemaID: id, Reason: ReasonCashierLimit})
	}
}

func refusal(emp Employee, cinemaID int64, index ConflictIndex) (Rejection, bool) {
	if !emp.IsActive {
		return Rejection{CinemaID: cinemaID, Reason: ReasonEmployeeInactive}, true
	}
	if holder, taken := index.conflict(emp, cinemaID); taken {
		return Rejection{CinemaID: cinemaID, Reason: ReasonConflictingRole, HeldBy: holder}, true
	}
	return Rejection{}, false
}

// Guard is the answer of CanDeactivateOrRetype.
type Guard struct {
	Allowed             bool `json:"allowed"`
	BlockingAssignments int  `json:"blocking_assignments"`
}

// CanDeactivateOrRetype refuses while emp still holds any active assignment.
// Rows of other employees are ignored.
func CanDeactivateOrRetype(emp Employee, active []CinemaAssignment) Guard {
	blocking := 0
	for _, row := range active {
		if row.IsActive && row.EmployeeID == emp.ID {
			blocking++
		}
	}
	return Guard{Allowed: blocking == 0, BlockingAssignments: blocking}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
