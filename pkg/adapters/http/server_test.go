package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/pkg/adapters/memory"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/observability"
	"github.com/aretw0/onestep/pkg/step"
)

func newTestHandler(t *testing.T, opts ...Option) (http.Handler, *onestep.Engine) {
	t.Helper()
	eng, err := onestep.New(
		onestep.WithStore(memory.NewStore()),
		onestep.WithRegistry(step.DefaultRegistry(step.WithDelay(0))),
	)
	require.NoError(t, err)
	return NewHandler(eng, opts...), eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestInvokeRun_Success(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/runs/run-1", RunRequest{
		TaskID: "42",
		Config: map[string]any{"model_name": "claude-3-7-sonnet@20250219"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunKey)
	require.Len(t, resp.State.Messages, 1)
	assert.Equal(t, "Success: 42", resp.State.Messages[0].Content)
	assert.Equal(t, domain.StepCompleted, resp.Step.Status)

	rec = do(t, h, http.MethodGet, "/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state domain.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "42", state.TaskID)
}

func TestInvokeRun_ValidationError(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/runs/run-1", RunRequest{TaskID: "42"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, step.ValidatingName, resp.Step)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "model_name", resp.Fields[0].Key)
	require.NotNil(t, resp.Result)
	assert.Equal(t, domain.StepFailed, resp.Result.Step.Status)

	rec = do(t, h, http.MethodGet, "/runs/run-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "failed invocation must not checkpoint")
}

func TestInvokeRun_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/runs/run-1", RunRequest{Config: map[string]any{"model_name": "m"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing task id is a precondition failure")

	rec = do(t, h, http.MethodPost, "/runs/run-1", RunRequest{Config: map[string]any{"step": "nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/runs/run-1", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRun_GeneratesKey(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/runs", RunRequest{Config: map[string]any{"step": "noop"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.RunKey, 36)

	state, err := eng.Checkpoint(context.Background(), resp.RunKey)
	require.NoError(t, err)
	assert.Equal(t, step.DefaultReply, state.Messages[0].Content)
}

func TestListSteps(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/steps", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var steps []struct {
		Name    string                    `json:"name"`
		Default bool                      `json:"default"`
		Schema  map[string]map[string]any `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, "noop", steps[0].Name)
	assert.Equal(t, "validate", steps[1].Name)
	assert.True(t, steps[1].Default)
	assert.Equal(t, true, steps[1].Schema["model_name"]["required"])
	assert.Empty(t, steps[0].Schema, "noop declares no options")
}

func TestHealthAndInfo(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/info", nil)
	assert.Contains(t, rec.Body.String(), onestep.Version)

	rec = do(t, h, http.MethodOptions, "/runs/x", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute(t *testing.T) {
	m := observability.NewMetrics("")
	h, _ := newTestHandler(t, WithMetrics(m))

	do(t, h, http.MethodPost, "/runs/run-1", RunRequest{TaskID: "42"})
	rec := do(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `onestep_http_requests_total{method="POST",route="/runs/{runKey}",status="422"} 1`)
}

func TestSubscribeEvents(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/runs/run-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	body, _ := json.Marshal(RunRequest{TaskID: "42", Config: map[string]any{"model_name": "m"}})
	post, err := http.Post(srv.URL+"/runs/run-1", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: {") {
			break
		}
	}
	assert.Contains(t, line, "Success: 42")
}

func TestStreamManager_Unsubscribe(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("k")
	assert.Equal(t, 1, sm.Subscribers("k"))

	sm.Broadcast("k", "hi")
	assert.Equal(t, "hi", <-ch)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, sm.Subscribers("k"))
}
