package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestMapStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized", 401, KindAuthentication},
		{"forbidden", 403, KindAuthentication},
		{"rate limited", 429, KindRateLimit},
		{"missing model", 404, KindModelNotFound},
		{"bad request", 400, KindInvalidRequest},
		{"unprocessable", 422, KindInvalidRequest},
		{"server fault", 500, KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Map(&StatusError{Status: tt.status, Body: "x"}, "openai")
			if !IsKind(err, tt.want) {
				t.Fatalf("status %d mapped to %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}

func TestMapRetryAfterHint(t *testing.T) {
	err := Map(&StatusError{Status: 429, Body: "slow down", RetryAfter: 30 * time.Second}, "claude")
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if got := RetryAfter(err); got != 30*time.Second {
		t.Fatalf("RetryAfter = %v, want 30s", got)
	}
}

// The text heuristics are best-effort fallbacks for transports without a
// structured status; these cases pin the rule order, not completeness.
func TestMapTextHeuristics(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"api key", "invalid api key provided", KindAuthentication},
		{"token", "token expired", KindAuthentication},
		{"rate limit", "rate limit reached for requests", KindRateLimit},
		{"not found", "model not found", KindModelNotFound},
		{"invalid", "invalid value for temperature", KindInvalidRequest},
		{"unclassified", "connection reset by peer", KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Map(stderrors.New(tt.text), "local")
			if !IsKind(err, tt.want) {
				t.Fatalf("%q mapped to %v, want %v", tt.text, err, tt.want)
			}
		})
	}
}

// "invalid api key" contains both auth and invalid terms; auth must win
// because the rule list is ordered.
func TestMapRuleOrder(t *testing.T) {
	err := Map(stderrors.New("invalid api key"), "openai")
	if !IsAuthentication(err) {
		t.Fatalf("expected authentication to win over invalid-request, got %v", err)
	}
}

func TestMapPassesThroughClassified(t *testing.T) {
	orig := New(KindStructuredOutput, "bad json")
	err := Map(fmt.Errorf("wrapped: %w", orig), "openai")
	if !IsStructuredOutput(err) {
		t.Fatalf("pre-classified error was reclassified: %v", err)
	}
}

func TestProviderErrorCarriesDiagnostics(t *testing.T) {
	orig := stderrors.New("weird backend fault")
	err := Map(orig, "local")
	var ae *Error
	if !stderrors.As(err, &ae) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ae.Kind != KindProvider {
		t.Fatalf("kind = %v, want provider", ae.Kind)
	}
	if ae.Provider != "local" {
		t.Fatalf("provider = %q, want local", ae.Provider)
	}
	if ae.Details["original_error"] != "weird backend fault" {
		t.Fatalf("missing original_error detail: %v", ae.Details)
	}
	if !stderrors.Is(err, orig) {
		t.Fatal("original error not reachable through Unwrap")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindStreaming, "openai", nil) != nil {
		t.Fatal("wrapping nil should stay nil")
	}
	if Map(nil, "openai") != nil {
		t.Fatal("mapping nil should stay nil")
	}
}
