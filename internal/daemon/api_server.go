package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/transcript"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJob))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Args(logging.Error(err))...)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.Args(logging.String("address", listener.Addr().String()))...)
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, for tests that bind port 0.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := StatusResponse{
		Running:      status.Running,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Queue: QueueCountsPayload{
			Total:         status.Queue.Total,
			Queued:        status.Queue.Queued,
			Running:       status.Queue.Running,
			AwaitingInput: status.Queue.AwaitingInput,
			Completed:     status.Queue.Completed,
			Failed:        status.Queue.Failed,
			Cancelled:     status.Queue.Cancelled,
		},
	}
	for _, check := range status.Stages {
		payload.Stages = append(payload.Stages, StageHealthPayload{
			Name:   check.Name,
			Ready:  check.Ready,
			Detail: check.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.submitJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+value)
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.Jobs().List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	payload := JobListResponse{Jobs: make([]JobPayload, 0, len(jobs))}
	for _, job := range jobs {
		payload.Jobs = append(payload.Jobs, jobPayload(job))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) submitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.daemon.Jobs().Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, JobResponse{Job: jobPayload(job)})
}

// handleJob routes /api/jobs/{id} and /api/jobs/{id}/{action}.
func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.describeJob(w, r, id)
	case action == "scenes" && r.Method == http.MethodPut:
		s.updateScenes(w, r, id)
	case action == "resume" && r.Method == http.MethodPost:
		s.applyTransition(w, r, id, s.daemon.Jobs().Resume)
	case action == "cancel" && r.Method == http.MethodPost:
		s.applyTransition(w, r, id, s.daemon.Jobs().Cancel)
	case action == "retry" && r.Method == http.MethodPost:
		s.applyTransition(w, r, id, s.daemon.Jobs().Retry)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) describeJob(w http.ResponseWriter, r *http.Request, id string) {
	status, err := s.daemon.Jobs().Status(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobDetailResponse{
		Job:       jobPayload(status.Job),
		Artifacts: artifactPayloads(status.Artifacts),
	})
}

func (s *apiServer) updateScenes(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateScenesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	update := queue.EditableSpec{
		ImageStyle:       req.ImageStyle,
		PositiveKeywords: req.PositiveKeywords,
		NegativeKeywords: req.NegativeKeywords,
		ArtistInfluences: req.ArtistInfluences,
	}
	if len(req.Scenes) > 0 {
		var scenes []transcript.Scene
		if err := json.Unmarshal(req.Scenes, &scenes); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid scenes payload")
			return
		}
		update.Scenes = scenes
	}
	job, err := s.daemon.Jobs().UpdateScenes(r.Context(), id, update)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: jobPayload(job)})
}

func (s *apiServer) applyTransition(w http.ResponseWriter, r *http.Request, id string, op func(context.Context, string) (*queue.Job, error)) {
	job, err := op(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: jobPayload(job)})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Args(logging.Error(err))...)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
