package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, quietLogger()).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestJobsHealth(t *testing.T) {
	rr := serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, body)

	rr = serveHealth(t, stubInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serveHealth(t, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewServeMuxSkipsIncompleteHandlers(t *testing.T) {
	job := NewAssignmentsAuditJob(stubActive{}, &stubOrphans{}, nil, quietLogger(), nil)
	mux := NewServeMux([]TaskHandler{
		{Type: TaskAssignmentsAudit, Handler: job.Handle},
		{Type: "", Handler: job.Handle},
		{Type: "noop"},
	})

	task, err := NewAssignmentsAuditTask(AssignmentsAuditPayload{Trigger: TriggerSchedule})
	require.NoError(t, err)
	_, pattern := mux.Handler(task)
	assert.Equal(t, TaskAssignmentsAudit, pattern)
}
