package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KFCxMcDonalds/hashwheel"
	"github.com/KFCxMcDonalds/hashwheel/jobs"
)

type taskView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	State           string `json:"state"`
	Slot            int    `json:"slot"`
	RoundsRemaining int64  `json:"rounds_remaining"`
	FailureReason   string `json:"failure_reason"`
}

func newTestServer(t *testing.T, metrics http.Handler) (*Server, *hashwheel.TimeWheel) {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	// not started: placement is deterministic and nothing fires unless the
	// delay is below one tick
	tw, err := hashwheel.New(100*time.Millisecond, 16, hashwheel.WithLogger(quiet))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tw.Stop(context.Background()) })

	s := New(Conf{Addr: ":0", Mode: gin.TestMode}, tw, jobs.NewFactory(quiet), metrics, quiet)
	return s, tw
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func createTask(t *testing.T, s *Server, body string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreateAndGetTask(t *testing.T) {
	s, _ := newTestServer(t, nil)
	id := createTask(t, s, `{"kind":"noop","name":"reminder","delay_ms":500}`)

	rec := do(t, s, http.MethodGet, "/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, id, view.ID)
	assert.Equal(t, "reminder", view.Name)
	assert.Equal(t, "scheduled", view.State)
	assert.Equal(t, 5, view.Slot)
	assert.Zero(t, view.RoundsRemaining)
}

func TestCreateTask_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for name, body := range map[string]string{
		"malformed":      `{"kind":`,
		"missing kind":   `{"delay_ms":100}`,
		"unknown kind":   `{"kind":"reboot","delay_ms":100}`,
		"negative delay": `{"kind":"noop","delay_ms":-1}`,
		"negative work":  `{"kind":"sleep","work_ms":-5}`,
		"delay overflow": `{"kind":"noop","delay_ms":18446744073710}`,
		"work overflow":  `{"kind":"sleep","work_ms":9223372036855}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/tasks", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateTask_LargestDelay(t *testing.T) {
	s, _ := newTestServer(t, nil)
	id := createTask(t, s, `{"kind":"noop","delay_ms":9223372036854}`)

	rec := do(t, s, http.MethodGet, "/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "scheduled", view.State)
	assert.GreaterOrEqual(t, view.Slot, 0)
	assert.Positive(t, view.RoundsRemaining)
}

func TestCreateTask_Closed(t *testing.T) {
	s, tw := newTestServer(t, nil)
	require.NoError(t, tw.Stop(context.Background()))

	rec := do(t, s, http.MethodPost, "/v1/tasks", `{"kind":"noop","delay_ms":500}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetTask_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/v1/tasks/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTask(t *testing.T) {
	s, tw := newTestServer(t, nil)
	id := createTask(t, s, `{"kind":"noop","delay_ms":1000}`)

	rec := do(t, s, http.MethodDelete, "/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	rec = do(t, s, http.MethodDelete, "/v1/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())

	rec = do(t, s, http.MethodDelete, "/v1/tasks/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())

	assert.EqualValues(t, 1, tw.Stats().TotalCancelled)
}

func TestListTasksAndStats(t *testing.T) {
	s, _ := newTestServer(t, nil)
	late := createTask(t, s, `{"kind":"noop","delay_ms":900}`)
	early := createTask(t, s, `{"kind":"noop","delay_ms":300}`)

	rec := do(t, s, http.MethodGet, "/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, early, views[0].ID)
	assert.Equal(t, late, views[1].ID)

	rec = do(t, s, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		SlotCount       int   `json:"slot_count"`
		TotalScheduled  int64 `json:"total_scheduled"`
		ActiveTaskCount int   `json:"active_task_count"`
		SlotSizes       []int `json:"per_slot_sizes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 16, st.SlotCount)
	assert.EqualValues(t, 2, st.TotalScheduled)
	assert.Equal(t, 2, st.ActiveTaskCount)
	assert.Len(t, st.SlotSizes, 16)
}

func TestImmediateFailingTask(t *testing.T) {
	s, _ := newTestServer(t, nil)
	id := createTask(t, s, `{"kind":"fail","message":"disk full","delay_ms":0}`)

	var view taskView
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/v1/tasks/"+id, "")
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &view) != nil {
			return false
		}
		return view.State == "failed"
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, view.FailureReason, "disk full")
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", "").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hashwheel_up 1\n")
	})
	s, _ = newTestServer(t, metrics)
	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hashwheel_up 1")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.server.Addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
