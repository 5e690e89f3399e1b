package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelforge/internal/api"
	"reelforge/internal/daemon"
)

func TestClientSubmitSendsTokenAndDecodesJob(t *testing.T) {
	var gotAuth string
	var gotBody api.SubmitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(daemon.JobResponse{Job: daemon.JobPayload{ID: "job-1", Status: "queued"}})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "secret")
	resp, err := client.Submit(api.SubmitRequest{SourceURL: "https://example.com/ep", SubtitleMode: "both"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Job.ID != "job-1" || resp.Job.Status != "queued" {
		t.Fatalf("unexpected job payload %+v", resp.Job)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotBody.SourceURL != "https://example.com/ep" || gotBody.SubtitleMode != "both" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
}

func TestClientListEncodesStatusFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filters := r.URL.Query()["status"]
		if len(filters) != 2 || filters[0] != "queued" || filters[1] != "failed" {
			t.Errorf("unexpected status filters %v", filters)
		}
		json.NewEncoder(w).Encode(daemon.JobListResponse{})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "")
	if _, err := client.List([]string{"queued", "failed"}); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestClientSurfacesDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "job is not awaiting input"})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "")
	_, err := client.Resume("job-9")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "job is not awaiting input") {
		t.Fatalf("expected daemon message in error, got %v", err)
	}
}

func TestClientTransitionPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		json.NewEncoder(w).Encode(daemon.JobResponse{Job: daemon.JobPayload{ID: "job-2"}})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "")
	if _, err := client.Resume("job-2"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := client.Cancel("job-2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := client.Retry("job-2"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	want := []string{
		"POST /api/jobs/job-2/resume",
		"POST /api/jobs/job-2/cancel",
		"POST /api/jobs/job-2/retry",
	}
	for i, path := range want {
		if paths[i] != path {
			t.Fatalf("expected %q, got %q", path, paths[i])
		}
	}
}
