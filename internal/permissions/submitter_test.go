package permissions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

type batchCallLog struct {
	kind       string
	employeeID int64
	req        BatchRequest
}

// memoryGateway keeps grants in memory with per-call failure injection.
type memoryGateway struct {
	mu        sync.Mutex
	grants    map[int64]map[int64]map[string]struct{}
	calls     []batchCallLog
	fetches   int
	grantErr  error
	revokeErr error
	fetchErr  error
}

func newMemoryGateway(grants ...Grant) *memoryGateway {
	gw := &memoryGateway{grants: make(map[int64]map[int64]map[string]struct{})}
	for _, g := range grants {
		gw.put(g.EmployeeID, g.CinemaID, g.PermissionCode)
	}
	return gw
}

func (m *memoryGateway) put(employeeID, cinemaID int64, code string) {
	if m.grants[employeeID] == nil {
		m.grants[employeeID] = make(map[int64]map[string]struct{})
	}
	if m.grants[employeeID][cinemaID] == nil {
		m.grants[employeeID][cinemaID] = make(map[string]struct{})
	}
	m.grants[employeeID][cinemaID][code] = struct{}{}
}

func (m *memoryGateway) GetEmployeePermissions(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []Grant
	for _, cinemaID := range cinemaIDs {
		for code := range m.grants[employeeID][cinemaID] {
			out = append(out, Grant{EmployeeID: employeeID, CinemaID: cinemaID, PermissionCode: code})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PermissionCode != out[j].PermissionCode {
			return out[i].PermissionCode < out[j].PermissionCode
		}
		return out[i].CinemaID < out[j].CinemaID
	})
	return out, nil
}

func (m *memoryGateway) GrantPermissions(ctx context.Context, employeeID int64, req BatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, batchCallLog{kind: "grant", employeeID: employeeID, req: req})
	if m.grantErr != nil {
		return m.grantErr
	}
	for _, cinemaID := range req.CinemaIDs {
		for _, code := range req.PermissionCodes {
			m.put(employeeID, cinemaID, code)
		}
	}
	return nil
}

func (m *memoryGateway) RevokePermissions(ctx context.Context, employeeID int64, req BatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, batchCallLog{kind: "revoke", employeeID: employeeID, req: req})
	if m.revokeErr != nil {
		return m.revokeErr
	}
	for _, cinemaID := range req.CinemaIDs {
		for _, code := range req.PermissionCodes {
			delete(m.grants[employeeID][cinemaID], code)
		}
	}
	return nil
}

func (m *memoryGateway) has(employeeID, cinemaID int64, code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.grants[employeeID][cinemaID][code]
	return ok
}

type saveMetrics struct{ results []string }

func (s *saveMetrics) ObservePermissionSave(result string) { s.results = append(s.results, result) }

type invalidations struct{ ids []int64 }

func (i *invalidations) Invalidate(ctx context.Context, employeeID int64) error {
	i.ids = append(i.ids, employeeID)
	return nil
}

type auditSpy struct{ logs []shared.AuditLog }

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func draftFrom(gw *memoryGateway, employeeID int64, cinemas ...int64) Draft {
	grants, _ := gw.GetEmployeePermissions(context.Background(), employeeID, cinemas)
	return NewDraft(employeeID, NewSelection(cinemas), NewGrantIndex(grants))
}

func TestSaveGrantsWholeSelection(t *testing.T) {
	gw := newMemoryGateway(grantsAt("BOOKING_VIEW", cinemaA)...)
	metrics := &saveMetrics{}
	inv := &invalidations{}
	audit := &auditSpy{}
	sub := NewSubmitter(gw, audit, discardLogger())
	sub.SetMetrics(metrics)
	sub.SetInvalidator(inv)

	d := draftFrom(gw, 1, cinemaA, cinemaB, cinemaC)
	require.Equal(t, State{Granted: 1, Status: StatusPartial}, d.Resolve("BOOKING_VIEW"))
	d = d.Toggle("BOOKING_VIEW")
	require.Equal(t, 3, d.EffectiveGranted("BOOKING_VIEW"))

	result, err := sub.Save(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, gw.calls, 1)
	assert.Equal(t, batchCallLog{
		kind:       "grant",
		employeeID: 1,
		req:        BatchRequest{CinemaIDs: []int64{cinemaA, cinemaB, cinemaC}, PermissionCodes: []string{"BOOKING_VIEW"}},
	}, gw.calls[0])
	assert.False(t, result.Revoke.Attempted)
	assert.False(t, result.Draft.HasPending())
	assert.False(t, result.Stale)
	assert.Equal(t, State{Granted: 3, Status: StatusFull}, result.Draft.Resolve("BOOKING_VIEW"))
	assert.Equal(t, []int64{1}, inv.ids)
	assert.Equal(t, []string{SaveSuccess}, metrics.results)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "permissions.save", audit.logs[0].Action)
}

func TestSaveRunsGrantThenRevoke(t *testing.T) {
	gw := newMemoryGateway(grantsAt("BOOKING_CREATE", cinemaA, cinemaB)...)
	sub := NewSubmitter(gw, nil, discardLogger())

	d := draftFrom(gw, 1, cinemaA, cinemaB).Toggle("BOOKING_VIEW").Toggle("BOOKING_CREATE")
	_, err := sub.Save(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, gw.calls, 2)
	assert.Equal(t, "grant", gw.calls[0].kind)
	assert.Equal(t, "revoke", gw.calls[1].kind)
	assert.Equal(t, []string{"BOOKING_CREATE"}, gw.calls[1].req.PermissionCodes)
	assert.False(t, gw.has(1, cinemaA, "BOOKING_CREATE"))
	assert.True(t, gw.has(1, cinemaB, "BOOKING_VIEW"))
}

func TestSaveKeepsPendingWhenRevokeFails(t *testing.T) {
	gw := newMemoryGateway(grantsAt("BOOKING_CREATE", cinemaA)...)
	gw.revokeErr = errors.New("503 upstream")
	metrics := &saveMetrics{}
	inv := &invalidations{}
	sub := NewSubmitter(gw, nil, discardLogger())
	sub.SetMetrics(metrics)
	sub.SetInvalidator(inv)

	d := draftFrom(gw, 1, cinemaA).Toggle("BOOKING_VIEW").Toggle("BOOKING_CREATE")
	result, err := sub.Save(context.Background(), d)

	require.ErrorIs(t, err, ErrSaveIncomplete)
	assert.True(t, result.Grant.Attempted)
	assert.True(t, result.Grant.OK())
	assert.True(t, result.Revoke.Attempted)
	assert.Equal(t, "503 upstream", result.Revoke.Error)
	assert.Equal(t, []string{"BOOKING_VIEW"}, result.Draft.PendingGrant())
	assert.Equal(t, []string{"BOOKING_CREATE"}, result.Draft.PendingRevoke())
	assert.Empty(t, inv.ids)
	assert.Equal(t, []string{SaveIncomplete}, metrics.results)

	// Pressing save again retries both halves; the grant is an idempotent upsert.
	gw.revokeErr = nil
	result, err = sub.Save(context.Background(), result.Draft)
	require.NoError(t, err)
	assert.False(t, result.Draft.HasPending())
	assert.False(t, gw.has(1, cinemaA, "BOOKING_CREATE"))
	assert.True(t, gw.has(1, cinemaA, "BOOKING_VIEW"))
}

func TestSaveAttemptsRevokeEvenWhenGrantFails(t *testing.T) {
	gw := newMemoryGateway(grantsAt("BOOKING_CREATE", cinemaA)...)
	gw.grantErr = errors.New("timeout")
	sub := NewSubmitter(gw, nil, discardLogger())

	d := draftFrom(gw, 1, cinemaA).Toggle("BOOKING_VIEW").Toggle("BOOKING_CREATE")
	result, err := sub.Save(context.Background(), d)

	require.ErrorIs(t, err, ErrSaveIncomplete)
	require.Len(t, gw.calls, 2)
	assert.True(t, result.Revoke.OK())
	assert.True(t, result.Draft.HasPending())
}

func TestSaveWithNothingPendingMakesNoCall(t *testing.T) {
	gw := newMemoryGateway()
	metrics := &saveMetrics{}
	sub := NewSubmitter(gw, nil, discardLogger())
	sub.SetMetrics(metrics)

	result, err := sub.Save(context.Background(), draftFrom(gw, 1, cinemaA))
	require.NoError(t, err)

	assert.Empty(t, gw.calls)
	assert.Equal(t, 1, gw.fetches, "only the fixture fetch")
	assert.False(t, result.Grant.Attempted)
	assert.Equal(t, []string{SaveNoop}, metrics.results)
}

func TestSaveMarksStaleWhenRefetchFails(t *testing.T) {
	gw := newMemoryGateway()
	sub := NewSubmitter(gw, nil, discardLogger())
	d := draftFrom(gw, 1, cinemaA).Toggle("BOOKING_VIEW")
	gw.fetchErr = errors.New("read replica down")

	result, err := sub.Save(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, result.Stale)
	assert.False(t, result.Draft.HasPending())
	assert.True(t, gw.has(1, cinemaA, "BOOKING_VIEW"))
}
