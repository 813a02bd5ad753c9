package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoDraft means the operator has no open editor for the employee.
var ErrNoDraft = errors.New("permissions: no open draft")

// DraftStore persists an operator's open draft between requests.
type DraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDraftStore constructs the store.
func NewDraftStore(client *redis.Client, ttl time.Duration) *DraftStore {
	return &DraftStore{client: client, ttl: ttl}
}

// Get loads the draft of operatorID for employeeID.
func (s *DraftStore) Get(ctx context.Context, operatorID, employeeID int64) (DraftState, error) {
	payload, err := s.client.Get(ctx, draftKey(operatorID, employeeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DraftState{}, ErrNoDraft
	}
	if err != nil {
		return DraftState{}, fmt.Errorf("permissions: load draft: %w", err)
	}
	var state DraftState
	if err := json.Unmarshal(payload, &state); err != nil {
		return DraftState{}, fmt.Errorf("permissions: decode draft: %w", err)
	}
	return state, nil
}

// Put stores state and refreshes its TTL.
func (s *DraftStore) Put(ctx context.Context, operatorID int64, state DraftState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, draftKey(operatorID, state.EmployeeID), raw, s.ttl).Err()
}

// Delete drops the draft. Deleting a missing draft is not an error.
func (s *DraftStore) Delete(ctx context.Context, operatorID, employeeID int64) error {
	return s.client.Del(ctx, draftKey(operatorID, employeeID)).Err()
}

func draftKey(operatorID, employeeID int64) string {
	return fmt.Sprintf("permissions:draft:%d:%d", operatorID, employeeID)
}
