package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/config"
	"github.com/JakeFAU/jobpost-ingest/internal/pipeline"
	"github.com/JakeFAU/jobpost-ingest/internal/scheduler"
)

func TestServer_StartRun_Accepted(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{nextID: "run-1"}
	rec := serve(t, NewServer(runs, nil, config.Config{}, zap.NewNop()), http.MethodPost, "/v1/runs", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"run_id":"run-1"}`, rec.Body.String())
	require.Equal(t, 1, runs.triggers)
}

func TestServer_StartRun_ConflictWhileRunning(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{running: "run-7"}
	rec := serve(t, NewServer(runs, nil, config.Config{}, zap.NewNop()), http.MethodPost, "/v1/runs", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "run-7")
}

func TestServer_StartRun_Error(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{err: errors.New("scheduler is stopped")}
	rec := serve(t, NewServer(runs, nil, config.Config{}, zap.NewNop()), http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_LastRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	server := NewServer(runs, nil, config.Config{}, zap.NewNop())

	rec := serve(t, server, http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	runs.last = &scheduler.Result{
		Stats: pipeline.Stats{RunID: "run-2", Rows: 12, Stored: 9},
		Err:   context.Canceled,
	}
	rec = serve(t, server, http.MethodGet, "/v1/runs/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body lastRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-2", body.Stats.RunID)
	require.Equal(t, 9, body.Stats.Stored)
	require.Equal(t, "context canceled", body.Error)
}

func TestServer_CurrentRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	server := NewServer(runs, nil, config.Config{}, zap.NewNop())
	require.Equal(t, http.StatusNotFound, serve(t, server, http.MethodGet, "/v1/runs/current", nil).Code)

	runs.running = "run-3"
	rec := serve(t, server, http.MethodGet, "/v1/runs/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "run-3")
}

func TestServer_HealthEndpoints(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRuns{}, nil, config.Config{}, zap.NewNop())
	require.Equal(t, http.StatusOK, serve(t, server, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, serve(t, server, http.MethodGet, "/readyz", nil).Code)

	failing := NewServer(&fakeRuns{}, func(context.Context) error { return errors.New("db down") }, config.Config{}, zap.NewNop())
	rec := serve(t, failing, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRuns{}, nil, config.Config{}, zap.NewNop())
	serve(t, server, http.MethodGet, "/healthz", nil)
	rec := serve(t, server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	server := NewServer(&fakeRuns{nextID: "run-1"}, nil, cfg, zap.NewNop())

	require.Equal(t, http.StatusForbidden, serve(t, server, http.MethodPost, "/v1/runs", nil).Code)
	require.Equal(t, http.StatusForbidden, serve(t, server, http.MethodPost, "/v1/runs", map[string]string{"X-API-Key": "wrong"}).Code)
	require.Equal(t, http.StatusAccepted, serve(t, server, http.MethodPost, "/v1/runs", map[string]string{"X-API-Key": "secret"}).Code)
	require.Equal(t, http.StatusAccepted, serve(t, server, http.MethodPost, "/v1/runs?api_key=secret", nil).Code)
	require.Equal(t, http.StatusOK, serve(t, server, http.MethodGet, "/healthz", nil).Code, "health checks stay open")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := NewServer(&panicRuns{}, nil, config.Config{}, zap.NewNop())
	rec := serve(t, server, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeRuns{}, nil, config.Config{}, zap.NewNop())
	rec := serve(t, server, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(t, server, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "abc"})
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func serve(t *testing.T, s *Server, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type fakeRuns struct {
	mu       sync.Mutex
	nextID   string
	running  string
	err      error
	last     *scheduler.Result
	triggers int
}

func (f *fakeRuns) Trigger() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.running != "" {
		return "", scheduler.ErrRunInProgress
	}
	f.triggers++
	return f.nextID, nil
}

func (f *fakeRuns) Running() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRuns) Last() (scheduler.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return scheduler.Result{}, false
	}
	return *f.last, true
}

type panicRuns struct{ fakeRuns }

func (*panicRuns) Trigger() (string, error) { panic("boom") }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
