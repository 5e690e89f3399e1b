package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
	"reelforge/internal/workflow"
)

type noopHandler struct {
	name string
}

func (h noopHandler) Name() string { return h.name }

func (h noopHandler) Prepare(context.Context, *queue.Job) error { return nil }

func (h noopHandler) Execute(context.Context, *queue.Job) (stage.Outcome, error) {
	return stage.Continue, nil
}

func (h noopHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(h.name) }

func newTestDaemon(t *testing.T, bind string) *Daemon {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = bind
	cfg.Workflow.Workers = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	store, err := queue.OpenPath(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := logging.NewNop()
	handlers := make([]stage.Handler, 0, len(stage.Order()))
	for _, name := range stage.Order() {
		handlers = append(handlers, noopHandler{name: name})
	}
	mgr := workflow.NewManager(&cfg, store, logger, handlers...)
	d, err := New(&cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func submitJob(t *testing.T, srv *apiServer, body string) JobResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 Created, got %d: %s", w.Code, w.Body.String())
	}
	var resp JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return resp
}

func TestAPIServerSubmitAndDescribe(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server

	resp := submitJob(t, srv, `{"source_url":"https://example.com/episode-9","subtitle_mode":"both","aspect_ratio":"9:16"}`)
	if resp.Job.Status != string(queue.StatusQueued) {
		t.Fatalf("expected queued job, got %q", resp.Job.Status)
	}
	if resp.Job.InputSpec == nil || resp.Job.InputSpec.SubtitleMode != queue.SubtitlesBoth {
		t.Fatalf("unexpected input spec: %+v", resp.Job.InputSpec)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+resp.Job.ID, nil)
	w := httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var detail JobDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail response: %v", err)
	}
	if detail.Job.ID != resp.Job.ID {
		t.Fatalf("expected job %s, got %s", resp.Job.ID, detail.Job.ID)
	}
}

func TestAPIServerSubmitRejectsInvalidSpec(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server

	cases := []string{
		`{"source_url":""}`,
		`{"source_url":"not a url"}`,
		`{"source_url":"https://example.com/e","subtitle_mode":"german"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.handleJobs(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, w.Code)
		}
	}
}

func TestAPIServerListFiltersByStatus(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server
	submitJob(t, srv, `{"source_url":"https://example.com/a"}`)
	submitJob(t, srv, `{"source_url":"https://example.com/b"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=queued", nil)
	w := httptest.NewRecorder()
	srv.handleJobs(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(resp.Jobs))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil)
	w = httptest.NewRecorder()
	srv.handleJobs(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", w.Code)
	}
}

func TestAPIServerUnknownJobIs404(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-job", nil)
	w := httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIServerSceneEditAndResume(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server
	resp := submitJob(t, srv, `{"source_url":"https://example.com/e"}`)

	// Scene edits require a parked job.
	req := httptest.NewRequest(http.MethodPut, "/api/jobs/"+resp.Job.ID+"/scenes", strings.NewReader(`{"image_style":"anime"}`))
	w := httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before awaiting_input, got %d", w.Code)
	}

	claimed, err := d.store.ClaimNext(context.Background(), "worker-1", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim job: %v", err)
	}
	plan := queue.EditableSpec{Scenes: []transcript.Scene{{Index: 0, Text: "scene", Prompt: "a drawing", Start: 0, End: 4}}}
	if ok, err := d.store.MarkAwaitingInput(context.Background(), resp.Job.ID, "worker-1", plan); err != nil || !ok {
		t.Fatalf("park job: ok=%v err=%v", ok, err)
	}

	body := `{"scenes":[{"index":0,"text":"edited scene","prompt":"a better drawing"}],"image_style":"anime"}`
	req = httptest.NewRequest(http.MethodPut, "/api/jobs/"+resp.Job.ID+"/scenes", strings.NewReader(body))
	w = httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for scene edit, got %d: %s", w.Code, w.Body.String())
	}
	var edited JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &edited); err != nil {
		t.Fatalf("decode edit response: %v", err)
	}
	if edited.Job.EditableSpec == nil || edited.Job.EditableSpec.ImageStyle != "anime" {
		t.Fatalf("expected merged image style, got %+v", edited.Job.EditableSpec)
	}
	if edited.Job.EditableSpec.Scenes[0].Text != "edited scene" {
		t.Fatalf("expected edited scene text, got %q", edited.Job.EditableSpec.Scenes[0].Text)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/"+resp.Job.ID+"/resume", nil)
	w = httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for resume, got %d: %s", w.Code, w.Body.String())
	}
	var resumed JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resumed); err != nil {
		t.Fatalf("decode resume response: %v", err)
	}
	if resumed.Job.Status != string(queue.StatusRunning) {
		t.Fatalf("expected running after resume, got %q", resumed.Job.Status)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/"+resp.Job.ID+"/resume", nil)
	w = httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for double resume, got %d", w.Code)
	}
}

func TestAPIServerCancel(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server
	resp := submitJob(t, srv, `{"source_url":"https://example.com/e"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+resp.Job.ID+"/cancel", nil)
	w := httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for cancel, got %d: %s", w.Code, w.Body.String())
	}
	var cancelled JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if cancelled.Job.Status != string(queue.StatusCancelled) {
		t.Fatalf("expected cancelled, got %q", cancelled.Job.Status)
	}
}

func TestAPIServerMethodNotAllowed(t *testing.T) {
	d := newTestDaemon(t, "")
	srv := d.server
	resp := submitJob(t, srv, `{"source_url":"https://example.com/e"}`)

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/"+resp.Job.ID, nil)
	w := httptest.NewRecorder()
	srv.handleJob(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := authMiddleware("secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}

	open := authMiddleware("", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w = httptest.NewRecorder()
	open(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected passthrough with empty token, got %d", w.Code)
	}
}

func TestAPIServerListenAndStatus(t *testing.T) {
	d := newTestDaemon(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	defer d.Stop()

	resp, err := http.Get("http://" + d.server.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}
	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if len(status.Stages) != len(stage.Order()) {
		t.Fatalf("expected %d stage checks, got %d", len(stage.Order()), len(status.Stages))
	}
}
