//go:build integration

// Live provider tests. Opt in with:
//
//	go test -tags integration ./tests/integration/
//
// Keys come from the environment or a .env file at the repo root. Tests
// for providers without a key are skipped, not failed.
package integration

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	autopilot "github.com/Morboz/auto-pilot"
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

func requireAdapter(t *testing.T, provider, envKey string) autopilot.Adapter {
	t.Helper()
	if os.Getenv(envKey) == "" {
		t.Skipf("%s not set", envKey)
	}
	a, err := autopilot.New(provider, autopilot.Config{Timeout: 60 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testGenerate(t *testing.T, a autopilot.Adapter, model string) {
	resp, err := a.Generate(context.Background(), model, []autopilot.Message{
		{Role: autopilot.RoleSystem, Content: "Answer with a single number, no punctuation."},
		{Role: autopilot.RoleUser, Content: "What is 2+2?"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "4") {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.Total() == 0 {
		t.Fatal("no token usage reported")
	}
}

func testStructured(t *testing.T, a autopilot.Adapter, model string) {
	type capital struct {
		Country string `json:"country"`
		Capital string `json:"capital"`
	}
	resp, err := a.StructuredGenerate(context.Background(), model, []autopilot.Message{
		{Role: autopilot.RoleUser, Content: "What is the capital of France?"},
	}, autopilot.StructuredGenerationParams{Schema: autopilot.SchemaFor(&capital{})})
	if err != nil {
		t.Fatal(err)
	}
	var out capital
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		t.Fatalf("content %q is not JSON: %v", resp.Content, err)
	}
	if !strings.EqualFold(out.Capital, "paris") {
		t.Fatalf("capital = %q", out.Capital)
	}
}

func testToolRound(t *testing.T, a autopilot.Adapter, model string) {
	type weatherArgs struct {
		City string `json:"city" description:"city name" required:"true"`
	}
	tools := []autopilot.ToolDefinition{
		autopilot.ToolFor("get_weather", "Current weather for a city.", weatherArgs{}),
	}
	first, err := a.RunWithTools(context.Background(), model, []autopilot.Message{
		{Role: autopilot.RoleUser, Content: "What's the weather in Paris? Use the tool."},
	}, tools, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.ToolCalls) == 0 {
		t.Skip("model declined to call the tool")
	}

	conv := first.Messages
	for _, call := range first.ToolCalls {
		conv = append(conv, autopilot.Message{
			Role:      autopilot.RoleUser,
			Type:      autopilot.TypeToolResult,
			Name:      call.Name,
			ToolUseID: call.ID,
			Content:   `{"temp_c": 18, "conditions": "sunny"}`,
		})
	}
	second, err := a.RunWithTools(context.Background(), model, conv, tools, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Content == "" {
		t.Fatal("empty final answer after tool result")
	}
}

func testStream(t *testing.T, a autopilot.Adapter, model string) {
	stream, err := a.Stream(context.Background(), model, []autopilot.Message{
		{Role: autopilot.RoleUser, Content: "Count from one to three."},
	}, nil, &autopilot.StreamOptions{IncludeUsage: true})
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	chunks := 0
	for chunk := range stream.Chunks() {
		if chunk.Delta {
			chunks++
			b.WriteString(chunk.Content)
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatal(err)
	}
	if chunks < 2 {
		t.Fatalf("only %d delta chunks; response did not stream", chunks)
	}
	if b.Len() == 0 {
		t.Fatal("empty streamed content")
	}
}

func TestOpenAI(t *testing.T) {
	a := requireAdapter(t, "openai", "OPENAI_API_KEY")
	model := "gpt-4o-mini"
	t.Run("generate", func(t *testing.T) { testGenerate(t, a, model) })
	t.Run("structured", func(t *testing.T) { testStructured(t, a, model) })
	t.Run("tools", func(t *testing.T) { testToolRound(t, a, model) })
	t.Run("stream", func(t *testing.T) { testStream(t, a, model) })
}

func TestClaude(t *testing.T) {
	a := requireAdapter(t, "claude", "ANTHROPIC_API_KEY")
	model := "claude-sonnet-4-20250514"
	t.Run("generate", func(t *testing.T) { testGenerate(t, a, model) })
	t.Run("structured", func(t *testing.T) { testStructured(t, a, model) })
	t.Run("tools", func(t *testing.T) { testToolRound(t, a, model) })
	t.Run("stream", func(t *testing.T) { testStream(t, a, model) })
}

func TestLocal(t *testing.T) {
	base := os.Getenv("LOCAL_BASE_URL")
	if base == "" {
		t.Skip("LOCAL_BASE_URL not set")
	}
	model := os.Getenv("LOCAL_MODEL")
	if model == "" {
		model = "llama3.1:8b"
	}
	a, err := autopilot.New("local", autopilot.Config{BaseURL: base, Timeout: 120 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	t.Run("generate", func(t *testing.T) { testGenerate(t, a, model) })
	t.Run("stream", func(t *testing.T) { testStream(t, a, model) })
}
