package imagegen_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/services"
	"reelforge/internal/services/imagegen"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *imagegen.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return imagegen.NewClient(imagegen.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Width:   1080,
		Height:  1920,
	}, imagegen.WithSleeper(func(time.Duration) {}))
}

func b64Response(data []byte) string {
	payload := map[string]any{
		"data": []map[string]any{
			{"b64_json": base64.StdEncoding.EncodeToString(data)},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestGenerateDecodesImageBytes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Size   string `json:"size"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Size != "1080x1920" {
			t.Errorf("unexpected size: %s", req.Size)
		}
		w.Write([]byte(b64Response([]byte("png-bytes"))))
	})

	data, err := client.Generate(context.Background(), "a quiet forest")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(b64Response([]byte("ok"))))
	})

	if _, err := client.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateContentPolicyIsValidation(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"rejected","code":"content_policy_violation"}}`, http.StatusBadRequest)
	})

	_, err := client.Generate(context.Background(), "prompt")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("content policy should not retry, got %d calls", calls.Load())
	}
}

func TestGenerateAuthFailureIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	})

	_, err := client.Generate(context.Background(), "prompt")
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
