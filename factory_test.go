package autopilot

import (
	"testing"

	moderr "github.com/Morboz/auto-pilot/errors"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", ProviderOpenAI},
		{"o1-preview", ProviderOpenAI},
		{"o3-mini", ProviderOpenAI},
		{"claude-opus-4", ProviderClaude},
		{"claude-sonnet-4", ProviderClaude},
		{"llama3.1:8b", ProviderLocal},
		{"codellama-34b", ProviderLocal},
		{"mistral-7b-instruct", ProviderLocal},
		{"qwen2.5-coder", ProviderLocal},
		{"deepseek-r1", ProviderLocal},
		{"Claude-Opus-4", ProviderClaude},
		{"some-unknown-model", ProviderOpenAI},
		{"", ProviderOpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := DetectProvider(tt.model); got != tt.want {
				t.Fatalf("DetectProvider(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

// Prefix rules beat family substrings: a first-party name that happens to
// contain an open-model fragment still resolves to its own provider.
func TestDetectProviderPrefixWins(t *testing.T) {
	if got := DetectProvider("gpt-4-mistral-tuned"); got != ProviderOpenAI {
		t.Fatalf("got %q, want %q", got, ProviderOpenAI)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("watson", Config{APIKey: "k"})
	if !moderr.IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(ProviderOpenAI, Config{})
	if !moderr.IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewClaudeRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New(ProviderClaude, Config{})
	if !moderr.IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewLocalRequiresEndpoint(t *testing.T) {
	_, err := New(ProviderLocal, Config{})
	if !moderr.IsConfiguration(err) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestNewReadsKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	a, err := New(ProviderOpenAI, Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if !a.Capabilities("gpt-4o").SupportsTools {
		t.Fatal("unexpected capabilities")
	}
}

type fakeAdapter struct{ Adapter }

func (fakeAdapter) Close() error { return nil }

func TestRegisterExtendsDispatch(t *testing.T) {
	Register("acme", func(cfg Config) (Adapter, error) {
		return fakeAdapter{}, nil
	})
	a, err := New("ACME", Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	found := false
	for _, name := range Providers() {
		if name == "acme" {
			found = true
		}
	}
	if !found {
		t.Fatalf("acme missing from %v", Providers())
	}
}

func TestNewForModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "k")
	a, err := NewForModel("claude-sonnet-4", Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.Capabilities("claude-opus-4").MaxContextLength != 200000 {
		t.Fatal("model routed to the wrong adapter")
	}
}
