// Package permissions resolves, edits and saves per-cinema permission grants
// for one employee across a selection of cinemas.
package permissions

import (
	"sort"
	"time"
)

// Status is the aggregate grant state of one permission over a selection.
type Status string

const (
	StatusNone    Status = "NONE"
	StatusPartial Status = "PARTIAL"
	StatusFull    Status = "FULL"
)

// Grant is one (employee, cinema, permission) row.
type Grant struct {
	EmployeeID     int64     `json:"employee_id"`
	CinemaID       int64     `json:"cinema_id"`
	PermissionCode string    `json:"permission_code"`
	GrantedAt      time.Time `json:"granted_at"`
}

// State is the resolved view of one permission.
type State struct {
	Granted int    `json:"granted"`
	Status  Status `json:"status"`
}

// Selection is a sorted, duplicate-free set of cinema ids.
type Selection struct {
	ids []int64
}

// NewSelection normalises ids into a Selection.
func NewSelection(ids []int64) Selection {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Selection{ids: out}
}

// IDs returns a copy of the cinema ids in ascending order.
func (s Selection) IDs() []int64 {
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of selected cinemas.
func (s Selection) Len() int { return len(s.ids) }

// Contains reports whether cinemaID is selected.
func (s Selection) Contains(cinemaID int64) bool {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= cinemaID })
	return i < len(s.ids) && s.ids[i] == cinemaID
}

// Equal reports whether both selections hold the same cinemas.
func (s Selection) Equal(other Selection) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// GrantIndex maps a permission code to the cinemas holding it.
type GrantIndex struct {
	byCode map[string]map[int64]struct{}
	total  int
}

// NewGrantIndex indexes grants by code.
func NewGrantIndex(grants []Grant) GrantIndex {
	ix := GrantIndex{byCode: make(map[string]map[int64]struct{})}
	for _, g := range grants {
		cinemas, ok := ix.byCode[g.PermissionCode]
		if !ok {
			cinemas = make(map[int64]struct{})
			ix.byCode[g.PermissionCode] = cinemas
		}
		if _, dup := cinemas[g.CinemaID]; dup {
			continue
		}
		cinemas[g.CinemaID] = struct{}{}
		ix.total++
	}
	return ix
}

// Has reports whether cinemaID holds code.
func (ix GrantIndex) Has(code string, cinemaID int64) bool {
	_, ok := ix.byCode[code][cinemaID]
	return ok
}

// Len returns the number of distinct (code, cinema) pairs.
func (ix GrantIndex) Len() int { return ix.total }

// Grants flattens the index back into rows for employeeID, ordered by code then cinema.
func (ix GrantIndex) Grants(employeeID int64) []Grant {
	codes := make([]string, 0, len(ix.byCode))
	for code := range ix.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]Grant, 0, ix.total)
	for _, code := range codes {
		cinemas := make([]int64, 0, len(ix.byCode[code]))
		for id := range ix.byCode[code] {
			cinemas = append(cinemas, id)
		}
		sort.Slice(cinemas, func(i, j int) bool { return cinemas[i] < cinemas[j] })
		for _, id := range cinemas {
			out = append(out, Grant{EmployeeID: employeeID, CinemaID: id, PermissionCode: code})
		}
	}
	return out
}

// Resolve counts the selected cinemas holding code. FULL needs a non-empty
// selection where every cinema holds it; NONE means no selected cinema does.
func Resolve(code string, selection Selection, ix GrantIndex) State {
	granted := 0
	if cinemas, ok := ix.byCode[code]; ok {
		for _, id := range selection.ids {
			if _, held := cinemas[id]; held {
				granted++
			}
		}
	}
	switch {
	case granted == 0:
		return State{Granted: 0, Status: StatusNone}
	case granted == selection.Len():
		return State{Granted: granted, Status: StatusFull}
	default:
		return State{Granted: granted, Status: StatusPartial}
	}
}
