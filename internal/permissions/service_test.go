package permissions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/catalog"
)

type stubAssignments map[int64][]int64

func (s stubAssignments) ListCinemaAssignments(ctx context.Context, employeeID int64) ([]assignments.CinemaAssignment, error) {
	rows := make([]assignments.CinemaAssignment, 0, len(s[employeeID]))
	for _, id := range s[employeeID] {
		rows = append(rows, assignments.CinemaAssignment{EmployeeID: employeeID, CinemaID: id, RoleType: assignments.RoleStaff, IsActive: true})
	}
	return rows, nil
}

const (
	operator int64 = 500
	employee int64 = 1
)

// EditorTestSuite drives the permission editor end to end over miniredis.
type EditorTestSuite struct {
	suite.Suite
	ctx      context.Context
	gateway  *memoryGateway
	cache    *SnapshotCache
	drafts   *DraftStore
	assigned stubAssignments
	service  *Service
}

func (s *EditorTestSuite) SetupTest() {
	s.ctx = context.Background()
	_, client := newRedis(s.T())
	s.gateway = newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA)...)
	s.cache = NewSnapshotCache(client, s.gateway, time.Minute)
	s.drafts = NewDraftStore(client, time.Hour)
	submitter := NewSubmitter(s.gateway, nil, discardLogger())
	submitter.SetInvalidator(s.cache)
	s.assigned = stubAssignments{employee: {cinemaA, cinemaB, cinemaC}}
	s.service = NewService(catalog.MustDefault(), s.assigned, s.cache, s.drafts, submitter, discardLogger())
}

func TestEditorTestSuite(t *testing.T) {
	suite.Run(t, new(EditorTestSuite))
}

func findPermission(view View, code string) (PermissionView, bool) {
	for _, g := range view.Groups {
		for _, p := range g.Permissions {
			if p.Code == code {
				return p, true
			}
		}
	}
	return PermissionView{}, false
}

func (s *EditorTestSuite) TestBookingViewScenario() {
	t := s.T()

	view, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA, cinemaB, cinemaC})
	require.NoError(t, err)
	perm, ok := findPermission(view, "BOOKING_VIEW")
	require.True(t, ok)
	assert.Equal(t, 1, perm.Granted)
	assert.Equal(t, StatusPartial, perm.Status)

	view, err = s.service.Toggle(s.ctx, operator, employee, "booking_view")
	require.NoError(t, err)
	perm, _ = findPermission(view, "BOOKING_VIEW")
	assert.Equal(t, PendingGrant, perm.Pending)
	assert.Equal(t, 3, perm.Effective)
	assert.True(t, view.Dirty)

	outcome, err := s.service.Save(s.ctx, operator, employee)
	require.NoError(t, err)
	require.Len(t, s.gateway.calls, 1)
	assert.Equal(t, BatchRequest{CinemaIDs: []int64{cinemaA, cinemaB, cinemaC}, PermissionCodes: []string{"BOOKING_VIEW"}}, s.gateway.calls[0].req)
	perm, _ = findPermission(outcome.View, "BOOKING_VIEW")
	assert.Equal(t, StatusFull, perm.Status)
	assert.Empty(t, perm.Pending)
	assert.False(t, outcome.View.Dirty)

	view, err = s.service.View(s.ctx, operator, employee)
	require.NoError(t, err)
	perm, _ = findPermission(view, "BOOKING_VIEW")
	assert.Equal(t, StatusFull, perm.Status, "bumped snapshot version forces a fresh load")
}

func (s *EditorTestSuite) TestOpenRejectsUnassignedCinema() {
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA, 999})
	s.Require().ErrorIs(err, ErrInvalidSelection)

	_, err = s.service.Open(s.ctx, operator, employee, nil)
	s.Require().ErrorIs(err, ErrInvalidSelection)
}

func (s *EditorTestSuite) TestEditingWithoutOpenDraft() {
	_, err := s.service.Toggle(s.ctx, operator, employee, "BOOKING_VIEW")
	s.Require().ErrorIs(err, ErrNoDraft)
}

func (s *EditorTestSuite) TestUnknownCodesAreRejected() {
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA})
	s.Require().NoError(err)

	_, err = s.service.Toggle(s.ctx, operator, employee, "NOT_A_CODE")
	s.Require().ErrorIs(err, ErrUnknownPermission)
	_, err = s.service.SelectAll(s.ctx, operator, employee, "POPCORN")
	s.Require().ErrorIs(err, ErrUnknownPermission)
}

func (s *EditorTestSuite) TestSelectionChangeDiscardsPending() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA, cinemaB})
	require.NoError(t, err)
	view, err := s.service.SelectAll(s.ctx, operator, employee, "SHOWTIME")
	require.NoError(t, err)
	require.Equal(t, []string{"SHOWTIME_MANAGE", "SHOWTIME_VIEW"}, view.PendingGrant)

	view, err = s.service.Select(s.ctx, operator, employee, []int64{cinemaB, cinemaA})
	require.NoError(t, err)
	assert.True(t, view.Dirty, "same set keeps pending")

	view, err = s.service.Select(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)
	assert.False(t, view.Dirty)
	assert.Equal(t, []int64{cinemaA}, view.CinemaIDs)
	perm, _ := findPermission(view, "BOOKING_VIEW")
	assert.Equal(t, StatusFull, perm.Status)
}

func (s *EditorTestSuite) TestDeselectAllThenReset() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)

	view, err := s.service.DeselectAll(s.ctx, operator, employee, "booking")
	require.NoError(t, err)
	assert.Equal(t, []string{"BOOKING_VIEW"}, view.PendingRevoke)

	view, err = s.service.Reset(s.ctx, operator, employee)
	require.NoError(t, err)
	assert.False(t, view.Dirty)
}

func (s *EditorTestSuite) TestDiscardMakesNoServerCall() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)
	_, err = s.service.Toggle(s.ctx, operator, employee, "VOUCHER_VIEW")
	require.NoError(t, err)

	require.NoError(t, s.service.Discard(s.ctx, operator, employee))

	assert.Empty(t, s.gateway.calls)
	_, err = s.service.View(s.ctx, operator, employee)
	require.ErrorIs(t, err, ErrNoDraft)
}

func (s *EditorTestSuite) TestFailedSaveKeepsDraftStored() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)
	_, err = s.service.Toggle(s.ctx, operator, employee, "VOUCHER_VIEW")
	require.NoError(t, err)
	s.gateway.grantErr = assert.AnError

	outcome, err := s.service.Save(s.ctx, operator, employee)
	require.ErrorIs(t, err, ErrSaveIncomplete)
	assert.Equal(t, []string{"VOUCHER_VIEW"}, outcome.View.PendingGrant)

	view, err := s.service.View(s.ctx, operator, employee)
	require.NoError(t, err)
	assert.Equal(t, []string{"VOUCHER_VIEW"}, view.PendingGrant)
}

func (s *EditorTestSuite) TestSaveAfterCinemaUnassignedIsRefused() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA, cinemaB})
	require.NoError(t, err)

	// A commit closes cinema B while the editor is still open.
	s.assigned[employee] = []int64{cinemaA, cinemaC}

	_, err = s.service.Toggle(s.ctx, operator, employee, "BOOKING_VIEW")
	require.NoError(t, err)
	outcome, err := s.service.Save(s.ctx, operator, employee)

	require.ErrorIs(t, err, ErrInvalidSelection)
	assert.Contains(t, err.Error(), "cinema 102")
	assert.Empty(t, s.gateway.calls, "no grant may reach the unassigned cinema")
	assert.False(t, s.gateway.has(employee, cinemaB, "BOOKING_VIEW"))
	assert.Equal(t, []string{"BOOKING_VIEW"}, outcome.View.PendingGrant)

	view, err := s.service.View(s.ctx, operator, employee)
	require.NoError(t, err)
	assert.Equal(t, []int64{cinemaA, cinemaB}, view.CinemaIDs, "stored draft is untouched")
	assert.Equal(t, []string{"BOOKING_VIEW"}, view.PendingGrant)

	view, err = s.service.Select(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)
	_, err = s.service.Toggle(s.ctx, operator, employee, "REPORT_VIEW")
	require.NoError(t, err)
	_, err = s.service.Save(s.ctx, operator, employee)
	require.NoError(t, err)
	assert.True(t, s.gateway.has(employee, cinemaA, "REPORT_VIEW"))
	assert.False(t, s.gateway.has(employee, cinemaB, "REPORT_VIEW"))
	assert.False(t, view.Dirty)
}

func (s *EditorTestSuite) TestOperatorsHaveSeparateDrafts() {
	t := s.T()
	_, err := s.service.Open(s.ctx, operator, employee, []int64{cinemaA})
	require.NoError(t, err)
	_, err = s.service.Open(s.ctx, operator+1, employee, []int64{cinemaB})
	require.NoError(t, err)

	mine, err := s.service.View(s.ctx, operator, employee)
	require.NoError(t, err)
	theirs, err := s.service.View(s.ctx, operator+1, employee)
	require.NoError(t, err)
	assert.Equal(t, []int64{cinemaA}, mine.CinemaIDs)
	assert.Equal(t, []int64{cinemaB}, theirs.CinemaIDs)
}

// Two operators saving opposite edits of the same grant race without locking.
// The final row depends on which call lands last; either outcome is accepted.
func TestConcurrentOperatorsLastWriteWins(t *testing.T) {
	for run := 0; run < 20; run++ {
		gw := newMemoryGateway(grantsAt("REPORT_VIEW", cinemaA)...)
		sub := NewSubmitter(gw, nil, discardLogger())

		revoker := draftFrom(gw, employee, cinemaA).Toggle("REPORT_VIEW")
		granter := draftFrom(gw, employee, cinemaA, cinemaB).Toggle("REPORT_VIEW")
		require.Equal(t, []string{"REPORT_VIEW"}, revoker.PendingRevoke())
		require.Equal(t, []string{"REPORT_VIEW"}, granter.PendingGrant())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = sub.Save(context.Background(), revoker) }()
		go func() { defer wg.Done(); _, _ = sub.Save(context.Background(), granter) }()
		wg.Wait()

		require.Len(t, gw.calls, 2)
		last := gw.calls[1].kind
		if last == "grant" {
			assert.True(t, gw.has(employee, cinemaA, "REPORT_VIEW"), "run %d", run)
		} else {
			assert.False(t, gw.has(employee, cinemaA, "REPORT_VIEW"), "run %d", run)
		}
		assert.True(t, gw.has(employee, cinemaB, "REPORT_VIEW"), "cinema B only sees the grant")
	}
}
