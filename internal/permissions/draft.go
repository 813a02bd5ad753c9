package permissions

import "sort"

// Draft is an in-flight permission edit for one employee. It is a value: every
// operation returns a new Draft and leaves the receiver untouched. The two
// pending sets are always disjoint.
type Draft struct {
	employeeID    int64
	selection     Selection
	grants        GrantIndex
	pendingGrant  codeSet
	pendingRevoke codeSet
}

// NewDraft starts an edit with nothing pending.
func NewDraft(employeeID int64, selection Selection, grants GrantIndex) Draft {
	return Draft{employeeID: employeeID, selection: selection, grants: grants}
}

// EmployeeID returns the edited employee.
func (d Draft) EmployeeID() int64 { return d.employeeID }

// Selection returns the selected cinemas.
func (d Draft) Selection() Selection { return d.selection }

// Grants returns the server snapshot the draft diffs against.
func (d Draft) Grants() GrantIndex { return d.grants }

// PendingGrant lists codes queued for grant, sorted.
func (d Draft) PendingGrant() []string { return d.pendingGrant.sorted() }

// PendingRevoke lists codes queued for revoke, sorted.
func (d Draft) PendingRevoke() []string { return d.pendingRevoke.sorted() }

// HasPending reports whether saving would issue any call.
func (d Draft) HasPending() bool {
	return len(d.pendingGrant) > 0 || len(d.pendingRevoke) > 0
}

// IsPendingGrant reports whether code is queued for grant.
func (d Draft) IsPendingGrant(code string) bool { return d.pendingGrant.has(code) }

// IsPendingRevoke reports whether code is queued for revoke.
func (d Draft) IsPendingRevoke(code string) bool { return d.pendingRevoke.has(code) }

// Resolve returns server truth for code over the current selection.
func (d Draft) Resolve(code string) State {
	return Resolve(code, d.selection, d.grants)
}

// Toggle branches on server truth, not on the pending-adjusted value. A FULL
// permission can only be queued for revoke; anything else only for grant.
func (d Draft) Toggle(code string) Draft {
	next := d.clone()
	if d.Resolve(code).Status == StatusFull {
		next.pendingRevoke = next.pendingRevoke.flip(code)
		next.pendingGrant = next.pendingGrant.without(code)
		return next
	}
	next.pendingGrant = next.pendingGrant.flip(code)
	next.pendingRevoke = next.pendingRevoke.without(code)
	return next
}

// EffectiveGranted is the count shown to the operator: the whole selection for
// a pending grant, zero for a pending revoke, server truth otherwise.
func (d Draft) EffectiveGranted(code string) int {
	switch {
	case d.pendingGrant.has(code):
		return d.selection.Len()
	case d.pendingRevoke.has(code):
		return 0
	default:
		return d.Resolve(code).Granted
	}
}

// SelectAllGroup queues for grant every code not granted at every selected
// cinema. Codes already granted everywhere lose any queued revoke, so every
// code of the group ends up effectively granted at the whole selection.
func (d Draft) SelectAllGroup(codes []string) Draft {
	next := d.clone()
	for _, code := range codes {
		if d.Resolve(code).Granted != d.selection.Len() {
			next.pendingGrant = next.pendingGrant.with(code)
		}
		next.pendingRevoke = next.pendingRevoke.without(code)
	}
	return next
}

// DeselectAllGroup queues for revoke every code granted at any selected
// cinema. Codes granted nowhere lose any queued grant.
func (d Draft) DeselectAllGroup(codes []string) Draft {
	next := d.clone()
	for _, code := range codes {
		if d.Resolve(code).Granted > 0 {
			next.pendingRevoke = next.pendingRevoke.with(code)
		}
		next.pendingGrant = next.pendingGrant.without(code)
	}
	return next
}

// Reset drops every pending change.
func (d Draft) Reset() Draft {
	return Draft{employeeID: d.employeeID, selection: d.selection, grants: d.grants}
}

// WithSelection switches to another cinema set. Pending changes were computed
// against the old set, so a different set clears them.
func (d Draft) WithSelection(selection Selection) Draft {
	if d.selection.Equal(selection) {
		return d
	}
	return Draft{employeeID: d.employeeID, selection: selection, grants: d.grants}
}

// WithGrants swaps the server snapshot, keeping pending changes.
func (d Draft) WithGrants(grants GrantIndex) Draft {
	next := d.clone()
	next.grants = grants
	return next
}

// DraftState is the storable form of a Draft. The grant snapshot is not part
// of it; it is reloaded from the server when the draft is restored.
type DraftState struct {
	EmployeeID    int64    `json:"employee_id"`
	CinemaIDs     []int64  `json:"cinema_ids"`
	PendingGrant  []string `json:"pending_grant"`
	PendingRevoke []string `json:"pending_revoke"`
}

// State captures d for storage.
func (d Draft) State() DraftState {
	return DraftState{
		EmployeeID:    d.employeeID,
		CinemaIDs:     d.selection.IDs(),
		PendingGrant:  d.PendingGrant(),
		PendingRevoke: d.PendingRevoke(),
	}
}

// Restore rebuilds a Draft from stored state and a fresh snapshot. A code
// present in both stored sets is dropped from the grant side.
func (s DraftState) Restore(grants GrantIndex) Draft {
	d := NewDraft(s.EmployeeID, NewSelection(s.CinemaIDs), grants)
	for _, code := range s.PendingRevoke {
		d.pendingRevoke = d.pendingRevoke.with(code)
	}
	for _, code := range s.PendingGrant {
		if d.pendingRevoke.has(code) {
			continue
		}
		d.pendingGrant = d.pendingGrant.with(code)
	}
	return d
}

func (d Draft) clone() Draft {
	return Draft{
		employeeID:    d.employeeID,
		selection:     d.selection,
		grants:        d.grants,
		pendingGrant:  d.pendingGrant.copy(),
		pendingRevoke: d.pendingRevoke.copy(),
	}
}

type codeSet map[string]struct{}

func (s codeSet) has(code string) bool {
	_, ok := s[code]
	return ok
}

func (s codeSet) copy() codeSet {
	if len(s) == 0 {
		return nil
	}
	out := make(codeSet, len(s))
	for code := range s {
		out[code] = struct{}{}
	}
	return out
}

// with, without and flip mutate s; callers only use them on clones.
func (s codeSet) with(code string) codeSet {
	if s == nil {
		s = make(codeSet)
	}
	s[code] = struct{}{}
	return s
}

func (s codeSet) without(code string) codeSet {
	delete(s, code)
	return s
}

func (s codeSet) flip(code string) codeSet {
	if s.has(code) {
		return s.without(code)
	}
	return s.with(code)
}

func (s codeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for code := range s {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
