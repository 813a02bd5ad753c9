package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/catalog"
)

// Errors returned by the editor service.
var (
	ErrInvalidSelection  = errors.New("permissions: invalid cinema selection")
	ErrUnknownPermission = errors.New("permissions: unknown permission")
)

// AssignmentSource lists an employee's cinema assignments.
type AssignmentSource interface {
	ListCinemaAssignments(ctx context.Context, employeeID int64) ([]assignments.CinemaAssignment, error)
}

// SnapshotSource loads grant snapshots.
type SnapshotSource interface {
	Load(ctx context.Context, employeeID int64, selection Selection) (GrantIndex, error)
}

// DraftRepository persists open drafts.
type DraftRepository interface {
	Get(ctx context.Context, operatorID, employeeID int64) (DraftState, error)
	Put(ctx context.Context, operatorID int64, state DraftState) error
	Delete(ctx context.Context, operatorID, employeeID int64) error
}

// Pending markers shown in the view.
const (
	PendingGrant  = "GRANT"
	PendingRevoke = "REVOKE"
)

// PermissionView is one row of the editor.
type PermissionView struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ActionType  string `json:"action_type"`
	Granted     int    `json:"granted"`
	Effective   int    `json:"effective"`
	Status      Status `json:"status"`
	Pending     string `json:"pending,omitempty"`
}

// GroupView is one resource group of the editor.
type GroupView struct {
	ResourceType string           `json:"resource_type"`
	Label        string           `json:"label"`
	Permissions  []PermissionView `json:"permissions"`
}

// View is what the operator sees for an open draft.
type View struct {
	EmployeeID    int64       `json:"employee_id"`
	CinemaIDs     []int64     `json:"cinema_ids"`
	PendingGrant  []string    `json:"pending_grant"`
	PendingRevoke []string    `json:"pending_revoke"`
	Dirty         bool        `json:"dirty"`
	Groups        []GroupView `json:"groups"`
}

// SaveOutcome pairs the refreshed view with the submitter's report.
type SaveOutcome struct {
	View   View       `json:"view"`
	Result SaveResult `json:"result"`
}

// Service runs the permission editor for operators.
type Service struct {
	catalog     *catalog.Catalog
	assignments AssignmentSource
	snapshots   SnapshotSource
	drafts      DraftRepository
	submitter   *Submitter
	logger      *slog.Logger
}

// NewService wires the editor.
func NewService(cat *catalog.Catalog, source AssignmentSource, snapshots SnapshotSource, drafts DraftRepository, submitter *Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:     cat,
		assignments: source,
		snapshots:   snapshots,
		drafts:      drafts,
		submitter:   submitter,
		logger:      logger,
	}
}

// Open starts a fresh draft over cinemaIDs, replacing any draft the operator had
// open for this employee.
func (s *Service) Open(ctx context.Context, operatorID, employeeID int64, cinemaIDs []int64) (View, error) {
	selection := NewSelection(cinemaIDs)
	if selection.Len() == 0 {
		return View{}, fmt.Errorf("%w: at least one cinema required", ErrInvalidSelection)
	}

	var (
		rows   []assignments.CinemaAssignment
		grants GrantIndex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.assignments.ListCinemaAssignments(gctx, employeeID)
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = s.snapshots.Load(gctx, employeeID, selection)
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}
	if err := checkAssigned(selection, rows); err != nil {
		return View{}, err
	}

	draft := NewDraft(employeeID, selection, grants)
	if err := s.drafts.Put(ctx, operatorID, draft.State()); err != nil {
		return View{}, err
	}
	return s.render(draft), nil
}

// Select changes the cinema selection. A different set discards pending changes.
func (s *Service) Select(ctx context.Context, operatorID, employeeID int64, cinemaIDs []int64) (View, error) {
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	selection := NewSelection(cinemaIDs)
	if selection.Len() == 0 {
		return View{}, fmt.Errorf("%w: at least one cinema required", ErrInvalidSelection)
	}
	if draft.Selection().Equal(selection) {
		return s.render(draft), nil
	}
	rows, err := s.assignments.ListCinemaAssignments(ctx, employeeID)
	if err != nil {
		return View{}, err
	}
	if err := checkAssigned(selection, rows); err != nil {
		return View{}, err
	}
	grants, err := s.snapshots.Load(ctx, employeeID, selection)
	if err != nil {
		return View{}, err
	}
	return s.store(ctx, operatorID, draft.WithSelection(selection).WithGrants(grants))
}

// Toggle flips the pending state of one permission.
func (s *Service) Toggle(ctx context.Context, operatorID, employeeID int64, code string) (View, error) {
	perm, ok := s.catalog.Lookup(code)
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownPermission, code)
	}
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	return s.store(ctx, operatorID, draft.Toggle(perm.Code))
}

// SelectAll queues every permission of resourceType for grant where needed.
func (s *Service) SelectAll(ctx context.Context, operatorID, employeeID int64, resourceType string) (View, error) {
	codes, err := s.groupCodes(resourceType)
	if err != nil {
		return View{}, err
	}
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	return s.store(ctx, operatorID, draft.SelectAllGroup(codes))
}

// DeselectAll queues every granted permission of resourceType for revoke.
func (s *Service) DeselectAll(ctx context.Context, operatorID, employeeID int64, resourceType string) (View, error) {
	codes, err := s.groupCodes(resourceType)
	if err != nil {
		return View{}, err
	}
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	return s.store(ctx, operatorID, draft.DeselectAllGroup(codes))
}

// Reset drops pending changes but keeps the editor open.
func (s *Service) Reset(ctx context.Context, operatorID, employeeID int64) (View, error) {
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	return s.store(ctx, operatorID, draft.Reset())
}

// Save submits the pending changes. The selection is checked against the
// employee's current assignments first, since a commit may have closed one
// since the editor opened; a stale selection fails with ErrInvalidSelection
// and the stored draft is left as it was. On ErrSaveIncomplete the draft and
// its pending sets stay stored and the outcome still carries the per-half report.
func (s *Service) Save(ctx context.Context, operatorID, employeeID int64) (SaveOutcome, error) {
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return SaveOutcome{}, err
	}
	rows, err := s.assignments.ListCinemaAssignments(ctx, employeeID)
	if err != nil {
		return SaveOutcome{}, err
	}
	if err := checkAssigned(draft.Selection(), rows); err != nil {
		return SaveOutcome{View: s.render(draft)}, err
	}
	result, saveErr := s.submitter.Save(ctx, draft)
	if err := s.drafts.Put(ctx, operatorID, result.Draft.State()); err != nil {
		return SaveOutcome{}, err
	}
	return SaveOutcome{View: s.render(result.Draft), Result: result}, saveErr
}

// Discard closes the editor without any server call.
func (s *Service) Discard(ctx context.Context, operatorID, employeeID int64) error {
	return s.drafts.Delete(ctx, operatorID, employeeID)
}

// View renders the open draft against a fresh snapshot.
func (s *Service) View(ctx context.Context, operatorID, employeeID int64) (View, error) {
	draft, err := s.load(ctx, operatorID, employeeID)
	if err != nil {
		return View{}, err
	}
	return s.render(draft), nil
}

func (s *Service) load(ctx context.Context, operatorID, employeeID int64) (Draft, error) {
	state, err := s.drafts.Get(ctx, operatorID, employeeID)
	if err != nil {
		return Draft{}, err
	}
	grants, err := s.snapshots.Load(ctx, employeeID, NewSelection(state.CinemaIDs))
	if err != nil {
		return Draft{}, err
	}
	return state.Restore(grants), nil
}

func (s *Service) store(ctx context.Context, operatorID int64, draft Draft) (View, error) {
	if err := s.drafts.Put(ctx, operatorID, draft.State()); err != nil {
		return View{}, err
	}
	return s.render(draft), nil
}

func (s *Service) groupCodes(resourceType string) ([]string, error) {
	codes, err := s.catalog.Codes(resourceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPermission, err)
	}
	return codes, nil
}

func (s *Service) render(d Draft) View {
	groups := s.catalog.Groups()
	view := View{
		EmployeeID:    d.EmployeeID(),
		CinemaIDs:     d.Selection().IDs(),
		PendingGrant:  d.PendingGrant(),
		PendingRevoke: d.PendingRevoke(),
		Dirty:         d.HasPending(),
		Groups:        make([]GroupView, 0, len(groups)),
	}
	for _, g := range groups {
		gv := GroupView{ResourceType: g.ResourceType, Label: g.Label, Permissions: make([]PermissionView, 0, len(g.Permissions))}
		for _, p := range g.Permissions {
			state := d.Resolve(p.Code)
			pv := PermissionView{
				Code:        p.Code,
				Name:        p.Name,
				Description: p.Description,
				ActionType:  p.ActionType,
				Granted:     state.Granted,
				Effective:   d.EffectiveGranted(p.Code),
				Status:      state.Status,
			}
			switch {
			case d.IsPendingGrant(p.Code):
				pv.Pending = PendingGrant
			case d.IsPendingRevoke(p.Code):
				pv.Pending = PendingRevoke
			}
			gv.Permissions = append(gv.Permissions, pv)
		}
		view.Groups = append(view.Groups, gv)
	}
	return view
}

func checkAssigned(selection Selection, rows []assignments.CinemaAssignment) error {
	assigned := make(map[int64]struct{}, len(rows))
	for _, id := range assignments.ActiveCinemaIDs(rows) {
		assigned[id] = struct{}{}
	}
	for _, id := range selection.IDs() {
		if _, ok := assigned[id]; !ok {
			return fmt.Errorf("%w: cinema %d is not actively assigned", ErrInvalidSelection, id)
		}
	}
	return nil
}
