package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
)

func completionBody(content string) string {
	return fmt.Sprintf(`{
		"model": "llama3.1:8b",
		"choices": [{"message": {"content": %q}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`, content)
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	a, err := New(core.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a, &calls
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(core.Options{})
	if !moderr.IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewDefaultsAPIKey(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer local" {
			t.Errorf("authorization = %q", got)
		}
		fmt.Fprint(w, completionBody("hi"))
	})
	if _, err := a.Generate(context.Background(), "llama3.1:8b", []core.Message{
		{Role: core.RoleUser, Content: "hi"},
	}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestRunWithToolsPromptFallback(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["tools"] != nil {
			t.Error("native tools array sent to a backend without tool support")
		}
		msgs := req["messages"].([]any)
		system := msgs[0].(map[string]any)
		if system["role"] != "system" || !strings.Contains(system["content"].(string), "Available tools:") {
			t.Errorf("tool catalog missing from system prompt: %v", system)
		}
		fmt.Fprint(w, completionBody("Tool: get_weather\nArguments: {\"city\": \"SF\"}"))
	})

	resp, err := a.RunWithTools(context.Background(), "llama3.1:8b", []core.Message{
		{Role: core.RoleUser, Content: "weather in SF?"},
	}, []core.ToolDefinition{{Name: "get_weather", Description: "current weather"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Free-text fallback: the tool intent rides in content, never in
	// structured tool calls.
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if !strings.Contains(resp.Content, "Tool: get_weather") {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestStructuredGeneratePromptFallback(t *testing.T) {
	var calls *atomic.Int64
	var a *Adapter
	a, calls = newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if calls.Load() == 1 {
			if req["response_format"] == nil {
				t.Error("native channel not attempted first")
			}
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": "response_format is not supported"}`)
			return
		}
		msgs := req["messages"].([]any)
		system := msgs[0].(map[string]any)
		if !strings.Contains(system["content"].(string), "matches this schema") {
			t.Errorf("schema instruction missing: %v", system)
		}
		fmt.Fprint(w, completionBody("{\"name\":\"Ada\"}"))
	})

	resp, err := a.StructuredGenerate(context.Background(), "llama3.1:8b", []core.Message{
		{Role: core.RoleUser, Content: "who?"},
	}, core.StructuredGenerationParams{Schema: map[string]any{"type": "object"}})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("server saw %d calls, want native attempt plus fallback", calls.Load())
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil || out["name"] != "Ada" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestStructuredGenerateNoRetryOnBadJSON(t *testing.T) {
	a, calls := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionBody("not json at all"))
	})
	_, err := a.StructuredGenerate(context.Background(), "llama3.1:8b", []core.Message{
		{Role: core.RoleUser, Content: "who?"},
	}, core.StructuredGenerationParams{Schema: map[string]any{"type": "object"}})
	if !moderr.IsStructuredOutput(err) {
		t.Fatalf("got %v, want structured output error", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("server saw %d calls; the prompt path must not retry bad JSON", calls.Load())
	}
}

func TestCapabilitiesConservative(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	caps := a.Capabilities("llama3.1:8b")
	if caps.SupportsTools || caps.SupportsJSONSchema || caps.SupportsImages {
		t.Fatalf("capabilities too optimistic: %+v", caps)
	}
	if !caps.SupportsStreaming || caps.MaxContextLength != 32768 {
		t.Fatalf("capabilities = %+v", caps)
	}

	a.Capabilities("llama3.1:8b")
	a.capMu.Lock()
	computes := a.capComputes
	a.capMu.Unlock()
	if computes != 1 {
		t.Fatalf("classifier ran %d times, want 1", computes)
	}
}
