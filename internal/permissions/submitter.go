package permissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

// ErrSaveIncomplete means at least one half of a save failed; the draft keeps
// its pending changes so pressing save again retries.
var ErrSaveIncomplete = errors.New("permissions: save incomplete")

// BatchRequest is the body of one grant or revoke call.
type BatchRequest struct {
	CinemaIDs       []int64  `json:"cinema_ids"`
	PermissionCodes []string `json:"permission_codes"`
}

// Gateway is the permission API the submitter talks to.
type Gateway interface {
	GetEmployeePermissions(ctx context.Context, employeeID int64, cinemaIDs []int64) ([]Grant, error)
	GrantPermissions(ctx context.Context, employeeID int64, req BatchRequest) error
	RevokePermissions(ctx context.Context, employeeID int64, req BatchRequest) error
}

// Invalidator drops cached grant snapshots of one employee.
type Invalidator interface {
	Invalidate(ctx context.Context, employeeID int64) error
}

// MetricsRecorder counts save attempts.
type MetricsRecorder interface {
	ObservePermissionSave(result string)
}

// CallResult reports one half of a save.
type CallResult struct {
	Attempted bool         `json:"attempted"`
	Request   BatchRequest `json:"request"`
	Error     string       `json:"error,omitempty"`
}

// OK reports whether the call was skipped or succeeded.
func (c CallResult) OK() bool { return c.Error == "" }

// SaveResult is what Save hands back to the editor.
type SaveResult struct {
	RequestID string     `json:"request_id,omitempty"`
	Grant     CallResult `json:"grant"`
	Revoke    CallResult `json:"revoke"`
	// Stale is set when the save succeeded but the refetch did not; the draft
	// then still diffs against the pre-save snapshot.
	Stale bool  `json:"stale,omitempty"`
	Draft Draft `json:"-"`
}

// Save results reported to metrics.
const (
	SaveNoop       = "noop"
	SaveSuccess    = "success"
	SaveIncomplete = "incomplete"
)

// Submitter turns a Draft into at most one grant and one revoke call.
type Submitter struct {
	gateway     Gateway
	audit       shared.AuditRecorder
	logger      *slog.Logger
	invalidator Invalidator
	metrics     MetricsRecorder
}

// NewSubmitter constructs a submitter.
func NewSubmitter(gateway Gateway, audit shared.AuditRecorder, logger *slog.Logger) *Submitter {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{gateway: gateway, audit: audit, logger: logger}
}

// SetInvalidator wires the snapshot cache bumped after a full save.
func (s *Submitter) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// SetMetrics wires the save counter.
func (s *Submitter) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Save grants pending grants and revokes pending revokes over the whole
// selection. Both halves are always attempted. On any failure the returned
// draft is d unchanged and the error wraps ErrSaveIncomplete. On full success
// pending sets are cleared and the grants are refetched.
func (s *Submitter) Save(ctx context.Context, d Draft) (SaveResult, error) {
	if !d.HasPending() {
		s.observe(SaveNoop)
		return SaveResult{Draft: d}, nil
	}

	result := SaveResult{RequestID: uuid.NewString(), Draft: d}
	logger := s.logger.With(slog.String("request_id", result.RequestID), slog.Int64("employee_id", d.EmployeeID()))
	cinemas := d.Selection().IDs()

	if codes := d.PendingGrant(); len(codes) > 0 {
		result.Grant = s.call(ctx, s.gateway.GrantPermissions, d.EmployeeID(), BatchRequest{CinemaIDs: cinemas, PermissionCodes: codes})
	}
	if codes := d.PendingRevoke(); len(codes) > 0 {
		result.Revoke = s.call(ctx, s.gateway.RevokePermissions, d.EmployeeID(), BatchRequest{CinemaIDs: cinemas, PermissionCodes: codes})
	}
	s.recordAudit(ctx, d.EmployeeID(), result, logger)

	if !result.Grant.OK() || !result.Revoke.OK() {
		s.observe(SaveIncomplete)
		logger.Warn("permission save incomplete",
			slog.String("grant_error", result.Grant.Error),
			slog.String("revoke_error", result.Revoke.Error))
		return result, fmt.Errorf("%w: grant=%q revoke=%q", ErrSaveIncomplete, result.Grant.Error, result.Revoke.Error)
	}

	s.observe(SaveSuccess)
	result.Draft = d.Reset()
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, d.EmployeeID()); err != nil {
			logger.Warn("invalidate grant snapshot", slog.Any("error", err))
		}
	}
	grants, err := s.gateway.GetEmployeePermissions(ctx, d.EmployeeID(), cinemas)
	if err != nil {
		logger.Warn("refetch grants after save", slog.Any("error", err))
		result.Stale = true
		return result, nil
	}
	result.Draft = result.Draft.WithGrants(NewGrantIndex(grants))
	logger.Info("permission save",
		slog.Int("granted_codes", len(result.Grant.Request.PermissionCodes)),
		slog.Int("revoked_codes", len(result.Revoke.Request.PermissionCodes)),
		slog.Int("cinemas", len(cinemas)))
	return result, nil
}

type batchCall func(ctx context.Context, employeeID int64, req BatchRequest) error

func (s *Submitter) call(ctx context.Context, fn batchCall, employeeID int64, req BatchRequest) CallResult {
	res := CallResult{Attempted: true, Request: req}
	if err := fn(ctx, employeeID, req); err != nil {
		res.Error = err.Error()
	}
	return res
}

func (s *Submitter) recordAudit(ctx context.Context, employeeID int64, result SaveResult, logger *slog.Logger) {
	meta := map[string]any{"request_id": result.RequestID}
	if result.Grant.Attempted && result.Grant.OK() {
		meta["granted"] = result.Grant.Request
	}
	if result.Revoke.Attempted && result.Revoke.OK() {
		meta["revoked"] = result.Revoke.Request
	}
	if len(meta) == 1 {
		return
	}
	actor, _ := shared.OperatorFromContext(ctx)
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   "permissions.save",
		Entity:   "employee",
		EntityID: strconv.FormatInt(employeeID, 10),
		Meta:     meta,
	})
	if err != nil {
		logger.Warn("record permission audit", slog.Any("error", err))
	}
}

func (s *Submitter) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObservePermissionSave(result)
	}
}
