package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/services/llm"
)

func chatResponse(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return llm.NewClient(llm.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	}, llm.WithSleeper(func(time.Duration) {}))
}

func TestGeneratePromptsReturnsOnePromptPerScene(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Write([]byte(chatResponse(`{"prompts": ["a cozy radio studio", "two friends hiking a ridge"]}`)))
	})

	prompts, err := client.GeneratePrompts(context.Background(), "en", []string{"scene one", "scene two"})
	if err != nil {
		t.Fatalf("generate prompts: %v", err)
	}
	if len(prompts) != 2 || prompts[0] != "a cozy radio studio" {
		t.Fatalf("unexpected prompts: %v", prompts)
	}
}

func TestGeneratePromptsRejectsCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"prompts": ["only one"]}`)))
	})

	if _, err := client.GeneratePrompts(context.Background(), "en", []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestTranslateTextsPreservesOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(chatResponse(`{"translations": ["hello", "goodbye"]}`)))
	})

	got, err := client.TranslateTexts(context.Background(), "de", "en", []string{"hallo", "tschüss"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got[0] != "hello" || got[1] != "goodbye" {
		t.Fatalf("unexpected translations: %v", got)
	}
}

func TestCompleteJSONRetriesOnServerError(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chatResponse(`{"ok": true}`)))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if content != `{"ok": true}` {
		t.Fatalf("unexpected content: %q", content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestDecodeLLMJSONStripsCodeFences(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	content := "```json\n{\"ok\": true}\n```"
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok=true")
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		Prompts []string `json:"prompts"`
	}
	content := `Here is the result: {"prompts": ["x"]} hope this helps`
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed.Prompts) != 1 || parsed.Prompts[0] != "x" {
		t.Fatalf("unexpected: %v", parsed.Prompts)
	}
}
