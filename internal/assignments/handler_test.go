package assignments

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

func newTestRouter(gw *stubGateway, dir stubDirectory) http.Handler {
	svc, _, _ := newTestService(gw, dir)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func TestHandlerProposal(t *testing.T) {
	gw := &stubGateway{rows: map[int64][]CinemaAssignment{3: {active(3, 100, RoleCashier)}}}
	router := newTestRouter(gw, stubDirectory{3: {ID: 3, RoleType: RoleCashier, IsActive: true}})

	req := httptest.NewRequest(http.MethodPost, "/employees/3/assignments/proposal", strings.NewReader(`{"cinema_ids":[100,200]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got Proposal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, []int64{200}, got.ToAssign)
	assert.Equal(t, []int64{100}, got.ToUnassign)
}

func TestHandlerCommitReportsMultiStatus(t *testing.T) {
	gw := &stubGateway{assignOut: map[int64]OutcomeStatus{2: StatusConflict}}
	router := newTestRouter(gw, stubDirectory{})

	req := httptest.NewRequest(http.MethodPost, "/employees/1/assignments/commit", strings.NewReader(`{"to_assign":[1,2]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["needs_resync"])
	assert.Equal(t, false, body["succeeded"])
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router := newTestRouter(&stubGateway{}, stubDirectory{})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad id", http.MethodGet, "/employees/abc/assignments", "", http.StatusBadRequest},
		{"negative cinema", http.MethodPost, "/employees/1/assignments/proposal", `{"cinema_ids":[-1]}`, http.StatusBadRequest},
		{"empty commit", http.MethodPost, "/employees/1/assignments/commit", `{}`, http.StatusBadRequest},
		{"unknown employee", http.MethodGet, "/employees/9/lifecycle-guard", "", http.StatusNotFound},
		{"bad role filter", http.MethodGet, "/assignments/active?role=JANITOR", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestHandlerCommitIdempotencyKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gw := &stubGateway{}
	svc, _, _ := newTestService(gw, stubDirectory{})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.SetIdempotency(shared.NewIdempotencyStore(client, time.Hour))
	router := chi.NewRouter()
	h.MountRoutes(router)

	commit := func(key, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/employees/1/assignments/commit", strings.NewReader(body))
		req.Header.Set(shared.IdempotencyHeader, key)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, commit("k-1", `{"to_assign":[5]}`))
	assert.Equal(t, http.StatusConflict, commit("k-1", `{"to_assign":[5]}`))
	assert.Len(t, gw.calls, 1, "replay never reaches the gateway")

	assert.Equal(t, http.StatusBadRequest, commit("k-2", `{}`))
	assert.False(t, mr.Exists("idempotency:assignments.commit:k-2"), "refused commits release their key")

	assert.Equal(t, http.StatusOK, commit("", `{"to_assign":[6]}`))
	assert.Equal(t, http.StatusOK, commit("", `{"to_assign":[6]}`))
}
