package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reelforge/internal/artifacts"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/stage"
	"reelforge/internal/transcript"
	"reelforge/internal/workflow"
)

type stubStage struct {
	name    string
	execute func(ctx context.Context, job *queue.Job) (stage.Outcome, error)

	mu    sync.Mutex
	calls int
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (s *stubStage) Execute(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, job)
	}
	return stage.Continue, nil
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health { return stage.Healthy(s.name) }

func (s *stubStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type harness struct {
	cfg   *config.Config
	store *queue.Store
	files *artifacts.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{}
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.LeaseSeconds = 5
	cfg.Workflow.StageTimeout = 30
	cfg.Workflow.MaxAttempts = 2
	cfg.Workflow.RetryBackoffSeconds = 0

	return &harness{cfg: cfg, store: store, files: artifacts.NewStore(t.TempDir())}
}

// committing returns a stub that commits a dummy artifact for its stage, the
// way real handlers mark themselves done.
func (h *harness) committing(name string, outcome stage.Outcome) *stubStage {
	stub := &stubStage{name: name}
	stub.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		var path string
		var err error
		if name == stage.NameScenePlan {
			path, err = h.files.WriteJSON(job.ID, name, "scene_plan.v1.json", queue.EditableSpec{
				Scenes: []transcript.Scene{
					{Index: 0, Text: "scene one", Prompt: "an illustration", Start: 0, End: 3},
				},
			})
		} else {
			path, err = h.files.WriteFile(job.ID, name, "out.v1.bin", []byte(name))
		}
		if err != nil {
			return stage.Continue, err
		}
		if _, err := h.store.RecordArtifact(ctx, job.ID, job.ClaimOwner, name, stage.KindFor(name), path); err != nil {
			return stage.Continue, err
		}
		return outcome, nil
	}
	return stub
}

func (h *harness) allStages(planOutcome stage.Outcome) []stage.Handler {
	handlers := make([]stage.Handler, 0, 6)
	for _, name := range stage.Order() {
		outcome := stage.Continue
		if name == stage.NameScenePlan {
			outcome = planOutcome
		}
		handlers = append(handlers, h.committing(name, outcome))
	}
	return handlers
}

func (h *harness) submit(t *testing.T) *queue.Job {
	t.Helper()
	job, err := h.store.NewJob(context.Background(), queue.InputSpec{SourceURL: "https://example.com/ep"})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func waitForStatus(t *testing.T, store *queue.Store, id string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(25 * time.Millisecond)
	}
	job, _ := store.GetByID(context.Background(), id)
	t.Fatalf("job never reached %s, last seen %+v", want, job)
	return nil
}

func startManager(t *testing.T, h *harness, handlers ...stage.Handler) *workflow.Manager {
	t.Helper()
	manager := workflow.NewManager(h.cfg, h.store, logging.NewNop(), handlers...)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(manager.Stop)
	return manager
}

func TestManagerRunsPipelineToCompletion(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)
	startManager(t, h, h.allStages(stage.Continue)...)

	done := waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
	if done.ClaimOwner != "" {
		t.Fatalf("completed job still claimed by %s", done.ClaimOwner)
	}
	list, err := h.store.ListArtifacts(context.Background(), job.ID)
	if err != nil || len(list) != len(stage.Order()) {
		t.Fatalf("expected one artifact per stage, got %d (%v)", len(list), err)
	}
}

func TestResumeSkipsCommittedStages(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	// Commit the first two stages under a claim that then goes away, as if a
	// previous run crashed after them.
	seeded, err := h.store.ClaimNext(context.Background(), "crashed-worker", time.Minute)
	if err != nil || seeded == nil {
		t.Fatalf("seed claim: %v", err)
	}
	for _, name := range []string{stage.NameDownload, stage.NameTranscribe} {
		path, err := h.files.WriteFile(job.ID, name, "out.v1.bin", []byte(name))
		if err != nil {
			t.Fatalf("seed artifact: %v", err)
		}
		if _, err := h.store.RecordArtifact(context.Background(), job.ID, seeded.ClaimOwner, name, stage.KindFor(name), path); err != nil {
			t.Fatalf("record artifact: %v", err)
		}
	}
	if err := h.store.ReleaseClaim(context.Background(), job.ID, seeded.ClaimOwner); err != nil {
		t.Fatalf("release seed claim: %v", err)
	}

	handlers := h.allStages(stage.Continue)
	download := handlers[0].(*stubStage)
	transcribe := handlers[1].(*stubStage)
	startManager(t, h, handlers...)

	waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
	if download.callCount() != 0 || transcribe.callCount() != 0 {
		t.Fatalf("committed stages re-ran: download=%d transcribe=%d", download.callCount(), transcribe.callCount())
	}
}

func TestPauseParksJobAndResumeContinues(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)
	handlers := h.allStages(stage.Pause)
	imageStage := handlers[4].(*stubStage)
	startManager(t, h, handlers...)

	parked := waitForStatus(t, h.store, job.ID, queue.StatusAwaitingInput)
	if parked.EditableSpecJSON == "" {
		t.Fatal("parked job missing editable spec")
	}
	if imageStage.callCount() != 0 {
		t.Fatal("image stage ran before resume")
	}

	if ok, err := h.store.Resume(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("resume: ok=%v err=%v", ok, err)
	}
	waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
	if imageStage.callCount() == 0 {
		t.Fatal("image stage never ran after resume")
	}
}

func TestValidationFailureIsTerminalAfterOneAttempt(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	failing := &stubStage{name: stage.NameDownload}
	failing.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Continue, services.Wrap(services.ErrValidation, stage.NameDownload, "validate", "bad url", nil)
	}
	startManager(t, h, failing)

	failed := waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if failing.callCount() != 1 {
		t.Fatalf("validation error should not retry, got %d attempts", failing.callCount())
	}
	if failed.ErrorMessage == "" {
		t.Fatal("failure message missing")
	}
}

func TestTransientFailureRetriesToCeiling(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	failing := &stubStage{name: stage.NameDownload}
	failing.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Continue, services.Wrap(services.ErrTransient, stage.NameDownload, "fetch", "flaky network", errors.New("timeout"))
	}
	startManager(t, h, failing)

	waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if got := failing.callCount(); got != h.cfg.Workflow.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", h.cfg.Workflow.MaxAttempts, got)
	}
}

func TestTransientFailureSucceedsWithinAttemptCeiling(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.MaxAttempts = 3
	job := h.submit(t)

	handlers := h.allStages(stage.Continue)
	download := handlers[0].(*stubStage)
	commit := download.execute
	download.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		if download.callCount() < 3 {
			return stage.Continue, services.Wrap(services.ErrTransient, stage.NameDownload, "fetch", "flaky network", errors.New("timeout"))
		}
		return commit(ctx, job)
	}
	startManager(t, h, handlers...)

	done := waitForStatus(t, h.store, job.ID, queue.StatusCompleted)
	if got := download.callCount(); got != 3 {
		t.Fatalf("expected 3 executions, got %d", got)
	}
	if got := done.Attempts()[stage.NameDownload]; got != 3 {
		t.Fatalf("recorded attempts = %d, want 3", got)
	}
}

func TestStageWithoutArtifactFailsJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	// The default stub returns Continue without committing anything.
	silent := &stubStage{name: stage.NameDownload}
	startManager(t, h, silent)

	failed := waitForStatus(t, h.store, job.ID, queue.StatusFailed)
	if got := silent.callCount(); got != 1 {
		t.Fatalf("stage without an artifact re-dispatched %d times", got)
	}
	if !strings.Contains(failed.ErrorMessage, "without committing") {
		t.Fatalf("unexpected failure message: %q", failed.ErrorMessage)
	}
}

func TestCommitAfterCancelIsRefused(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	started := make(chan struct{})
	proceed := make(chan struct{})
	committed := make(chan struct{})
	var commitErr error
	racing := &stubStage{name: stage.NameDownload}
	racing.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		close(started)
		<-proceed
		// The stage finished its work without noticing the cancellation;
		// the commit itself must be refused.
		_, commitErr = h.store.RecordArtifact(context.Background(), job.ID, job.ClaimOwner, stage.NameDownload, stage.KindAudio, "/tmp/audio.v1.mp3")
		close(committed)
		return stage.Continue, commitErr
	}
	startManager(t, h, racing)

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("stage never started")
	}
	if ok, err := h.store.Cancel(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	close(proceed)

	select {
	case <-committed:
	case <-time.After(10 * time.Second):
		t.Fatal("stage never attempted its commit")
	}
	waitForStatus(t, h.store, job.ID, queue.StatusCancelled)
	if !errors.Is(commitErr, queue.ErrClaimLost) {
		t.Fatalf("expected claim-lost commit error, got %v", commitErr)
	}
	list, err := h.store.ListArtifacts(context.Background(), job.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("cancelled job has artifacts: %d (%v)", len(list), err)
	}
}

func TestCancelMidStageLeavesNoNewArtifacts(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t)

	started := make(chan struct{})
	blocking := &stubStage{name: stage.NameDownload}
	blocking.execute = func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		close(started)
		<-ctx.Done()
		return stage.Continue, ctx.Err()
	}
	startManager(t, h, blocking)

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("stage never started")
	}
	if ok, err := h.store.Cancel(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	cancelled := waitForStatus(t, h.store, job.ID, queue.StatusCancelled)
	if cancelled.ClaimOwner != "" {
		t.Fatalf("cancelled job still claimed by %s", cancelled.ClaimOwner)
	}
	list, err := h.store.ListArtifacts(context.Background(), job.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("cancelled job has artifacts: %d (%v)", len(list), err)
	}
}

func TestHealthReportsEveryStage(t *testing.T) {
	h := newHarness(t)
	manager := workflow.NewManager(h.cfg, h.store, logging.NewNop(), h.allStages(stage.Continue)...)
	checks := manager.Health(context.Background())
	if len(checks) != len(stage.Order()) {
		t.Fatalf("expected %d checks, got %d", len(stage.Order()), len(checks))
	}
	for _, check := range checks {
		if !check.Ready {
			t.Fatalf("stage %s unexpectedly unhealthy", check.Name)
		}
	}
}
