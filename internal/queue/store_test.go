package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/queue"
	"reelforge/internal/transcript"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newJob(t *testing.T, store *queue.Store) *queue.Job {
	t.Helper()
	job, err := store.NewJob(context.Background(), queue.InputSpec{
		SourceURL:    "https://example.com/episode.mp3",
		SubtitleMode: queue.SubtitlesNone,
		AspectRatio:  queue.AspectPortrait,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func TestNewJobRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := newJob(t, store)
	if job.ID == "" {
		t.Fatal("expected generated job id")
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("new job status = %s", job.Status)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected job to load")
	}
	spec, err := loaded.InputSpec()
	if err != nil {
		t.Fatalf("decode input spec: %v", err)
	}
	if spec.SourceURL != "https://example.com/episode.mp3" {
		t.Fatalf("unexpected source url: %q", spec.SourceURL)
	}

	missing, err := store.GetByID(ctx, "no-such-job")
	if err != nil {
		t.Fatalf("get missing job: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing job")
	}
}

func TestClaimNextIsExclusive(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	first, err := store.ClaimNext(ctx, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil || first.ID != job.ID {
		t.Fatalf("expected worker-1 to claim %s, got %+v", job.ID, first)
	}
	if first.Status != queue.StatusRunning || first.ClaimOwner != "worker-1" {
		t.Fatalf("unexpected claimed job state: %+v", first)
	}

	second, err := store.ClaimNext(ctx, "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no job for worker-2, got %s", second.ID)
	}
}

func TestClaimNextReclaimsExpiredLease(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", -time.Second); err != nil {
		t.Fatalf("claim with expired lease: %v", err)
	}

	reclaimed, err := store.ClaimNext(ctx, "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != job.ID {
		t.Fatal("expected worker-2 to reclaim the stale job")
	}
	if reclaimed.ClaimOwner != "worker-2" {
		t.Fatalf("unexpected owner after reclaim: %q", reclaimed.ClaimOwner)
	}
}

func TestHeartbeatFailsAfterClaimLost(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", -time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-2", time.Minute); err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	alive, err := store.Heartbeat(ctx, job.ID, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if alive {
		t.Fatal("worker-1 should have lost its claim")
	}
	alive, err = store.Heartbeat(ctx, job.ID, "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !alive {
		t.Fatal("worker-2 heartbeat should succeed")
	}
}

func TestAwaitingInputFlow(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	spec := queue.EditableSpec{
		Scenes: []transcript.Scene{
			{Index: 0, Text: "intro", Start: 0, End: 5, Prompt: "a podcast studio"},
		},
	}
	parked, err := store.MarkAwaitingInput(ctx, job.ID, "worker-1", spec)
	if err != nil {
		t.Fatalf("park: %v", err)
	}
	if !parked {
		t.Fatal("expected park to succeed")
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != queue.StatusAwaitingInput {
		t.Fatalf("status = %s", loaded.Status)
	}
	if loaded.ClaimOwner != "" {
		t.Fatalf("claim should be released, owner = %q", loaded.ClaimOwner)
	}

	spec.Scenes[0].Prompt = "a cozy podcast studio at night"
	updated, err := store.UpdateEditableSpec(ctx, job.ID, spec)
	if err != nil {
		t.Fatalf("update spec: %v", err)
	}
	if !updated {
		t.Fatal("expected spec update on parked job")
	}

	resumed, err := store.Resume(ctx, job.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed {
		t.Fatal("expected resume to succeed")
	}

	loaded, err = store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != queue.StatusRunning {
		t.Fatalf("status after resume = %s", loaded.Status)
	}
	if loaded.ClaimOwner != "" {
		t.Fatalf("resumed job should carry no claim, owner = %q", loaded.ClaimOwner)
	}
	edit, err := loaded.EditableSpec()
	if err != nil {
		t.Fatalf("decode editable spec: %v", err)
	}
	if edit == nil || edit.Scenes[0].Prompt != "a cozy podcast studio at night" {
		t.Fatalf("edited prompt lost: %+v", edit)
	}

	// Edits are rejected once the job is no longer parked.
	updated, err = store.UpdateEditableSpec(ctx, job.ID, spec)
	if err != nil {
		t.Fatalf("update spec: %v", err)
	}
	if updated {
		t.Fatal("spec update should fail outside awaiting_input")
	}
}

func TestCancelOnlyFromNonTerminal(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	cancelled, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel of queued job")
	}

	again, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	if again {
		t.Fatal("cancel must not apply twice")
	}

	loaded, _ := store.GetByID(ctx, job.ID)
	if loaded.Status != queue.StatusCancelled {
		t.Fatalf("status = %s", loaded.Status)
	}
}

func TestMarkFailedAndRetry(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	failed, err := store.MarkFailed(ctx, job.ID, "download: fetch: boom")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !failed {
		t.Fatal("expected fail to apply")
	}

	loaded, _ := store.GetByID(ctx, job.ID)
	if loaded.Status != queue.StatusFailed || loaded.ErrorMessage == "" {
		t.Fatalf("unexpected failed state: %+v", loaded)
	}

	retried, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retried {
		t.Fatal("expected retry to apply")
	}
	loaded, _ = store.GetByID(ctx, job.ID)
	if loaded.Status != queue.StatusQueued || loaded.ErrorMessage != "" {
		t.Fatalf("unexpected retried state: %+v", loaded)
	}
}

func TestArtifactVersioning(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	has, err := store.HasArtifact(ctx, job.ID, "transcribe")
	if err != nil {
		t.Fatalf("has artifact: %v", err)
	}
	if has {
		t.Fatal("no artifacts should exist yet")
	}

	if _, err := store.ClaimNext(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	first, err := store.RecordArtifact(ctx, job.ID, "worker-1", "transcribe", "transcript", "/tmp/a/v1.json")
	if err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first version = %d", first.Version)
	}
	second, err := store.RecordArtifact(ctx, job.ID, "worker-1", "transcribe", "transcript", "/tmp/a/v2.json")
	if err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second version = %d", second.Version)
	}

	latest, err := store.LatestArtifact(ctx, job.ID, "transcribe", "transcript")
	if err != nil {
		t.Fatalf("latest artifact: %v", err)
	}
	if latest == nil || latest.Version != 2 || latest.Path != "/tmp/a/v2.json" {
		t.Fatalf("unexpected latest: %+v", latest)
	}

	has, err = store.HasArtifact(ctx, job.ID, "transcribe")
	if err != nil {
		t.Fatalf("has artifact: %v", err)
	}
	if !has {
		t.Fatal("expected artifact presence")
	}

	all, err := store.ListArtifacts(ctx, job.ID)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(all))
	}
}

func TestRecordArtifactRefusedWithoutLiveClaim(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok, err := store.Cancel(ctx, job.ID); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	// The worker finished its stage after the cancellation landed; the commit
	// must not go through.
	_, err := store.RecordArtifact(ctx, job.ID, "worker-1", "compose_video", "reel", "/tmp/reel.v1.mp4")
	if !errors.Is(err, queue.ErrClaimLost) {
		t.Fatalf("expected claim-lost error, got %v", err)
	}
	has, err := store.HasArtifact(ctx, job.ID, "compose_video")
	if err != nil {
		t.Fatalf("has artifact: %v", err)
	}
	if has {
		t.Fatal("cancelled job must not gain artifacts")
	}
}

func TestRecordArtifactRefusedAfterLeaseTakeover(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", -time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.ClaimNext(ctx, "worker-2", time.Minute); err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	_, err := store.RecordArtifact(ctx, job.ID, "worker-1", "download", "audio", "/tmp/audio.v1.mp3")
	if !errors.Is(err, queue.ErrClaimLost) {
		t.Fatalf("expected claim-lost error for stale owner, got %v", err)
	}
	if _, err := store.RecordArtifact(ctx, job.ID, "worker-2", "download", "audio", "/tmp/audio.v1.mp3"); err != nil {
		t.Fatalf("live owner commit: %v", err)
	}
}

func TestResumeMakesJobDispatchable(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	if _, err := store.ClaimNext(ctx, "worker-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok, err := store.MarkAwaitingInput(ctx, job.ID, "worker-1", queue.EditableSpec{}); err != nil || !ok {
		t.Fatalf("park: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Resume(ctx, job.ID); err != nil || !ok {
		t.Fatalf("resume: ok=%v err=%v", ok, err)
	}

	claimed, err := store.ClaimNext(ctx, "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("claim after resume: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatal("resumed job should be claimable without re-queueing")
	}
	if claimed.Status != queue.StatusRunning || claimed.ClaimOwner != "worker-2" {
		t.Fatalf("unexpected claimed state: %+v", claimed)
	}
}

func TestRecordAttemptIncrements(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := newJob(t, store)

	for want := 1; want <= 3; want++ {
		got, err := store.RecordAttempt(ctx, job.ID, "download")
		if err != nil {
			t.Fatalf("record attempt: %v", err)
		}
		if got != want {
			t.Fatalf("attempt %d reported as %d", want, got)
		}
	}
	loaded, _ := store.GetByID(ctx, job.ID)
	if loaded.Attempts()["download"] != 3 {
		t.Fatalf("attempts = %v", loaded.Attempts())
	}
}

func TestHealthCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	a := newJob(t, store)
	newJob(t, store)

	if _, err := store.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Total != 2 || health.Queued != 1 || health.Cancelled != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}
