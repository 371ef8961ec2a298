// Package claude implements the messages-style adapter for Anthropic's
// API and compatible third parties reachable through a base URL override.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
	"github.com/Morboz/auto-pilot/internal/httpclient"
	"github.com/Morboz/auto-pilot/internal/util"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Adapter talks to a messages-style backend.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	capMu sync.Mutex
	caps  map[string]core.ModelCapabilities
	// capComputes counts classifier runs; guarded by capMu.
	capComputes int
}

// New constructs the adapter. BaseURL switches the target to any
// messages-API compatible provider.
func New(opts core.Options) *Adapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpclient.New(opts.EffectiveTimeout())
	}
	return &Adapter{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		logger:     opts.EffectiveLogger(),
		caps:       make(map[string]core.ModelCapabilities),
	}
}

func (a *Adapter) Generate(ctx context.Context, model string, messages []core.Message, params *core.GenerationParams) (*core.GenerationResponse, error) {
	p := core.DefaultGenerationParams()
	if params != nil {
		p = *params
	}
	system, wire, err := buildPayload(messages)
	if err != nil {
		return nil, err
	}
	return a.complete(ctx, messagesRequest{
		Model:       model,
		MaxTokens:   maxTokensOr(p.MaxTokens),
		System:      system,
		Messages:    wire,
		Temperature: p.Temperature,
		TopP:        p.TopP,
	}, messages)
}

// StructuredGenerate has no native schema channel on the messages API:
// the schema rides in as system-prompt instructions. The fallback is
// transparent and the JSON-validation contract applies unchanged.
func (a *Adapter) StructuredGenerate(ctx context.Context, model string, messages []core.Message, params core.StructuredGenerationParams) (*core.GenerationResponse, error) {
	system, wire, err := buildPayload(messages)
	if err != nil {
		return nil, err
	}
	schemaText, err := json.MarshalIndent(params.Schema, "", "  ")
	if err != nil {
		return nil, moderr.Wrap(moderr.KindInvalidRequest, "claude", err)
	}
	instruction := "Please respond with valid JSON only that matches the following schema:\n" + string(schemaText)
	if system == "" {
		system = instruction
	} else {
		system += "\n\n" + instruction
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	resp, err := a.complete(ctx, messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    wire,
		Temperature: params.Temperature,
	}, messages)
	if err != nil {
		return nil, err
	}
	return validateStructured(resp)
}

func (a *Adapter) RunWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.ToolExecutionParams) (*core.GenerationResponse, error) {
	p := core.DefaultToolExecutionParams()
	if params != nil {
		p = *params
	}
	system, wire, err := buildPayload(messages)
	if err != nil {
		return nil, err
	}
	payload := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokensOr(p.MaxTokens),
		System:      system,
		Messages:    wire,
		Tools:       buildTools(tools),
		Temperature: p.Temperature,
	}
	if p.ToolChoice == core.ToolChoiceNone {
		payload.ToolChoice = map[string]any{"type": "none"}
	}
	return a.complete(ctx, payload, messages)
}

func (a *Adapter) Stream(ctx context.Context, model string, messages []core.Message, params *core.StreamParams, opts *core.StreamOptions) (*core.Stream, error) {
	p := core.DefaultStreamParams()
	if params != nil {
		p = *params
	}
	includeUsage := opts != nil && opts.IncludeUsage
	system, wire, err := buildPayload(messages)
	if err != nil {
		return nil, err
	}
	return a.startStream(ctx, messagesRequest{
		Model:       model,
		MaxTokens:   maxTokensOr(p.MaxTokens),
		System:      system,
		Messages:    wire,
		Temperature: p.Temperature,
		Stream:      true,
	}, includeUsage)
}

func (a *Adapter) StreamWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.StreamParams) (*core.Stream, error) {
	p := core.DefaultStreamParams()
	if params != nil {
		p = *params
	}
	system, wire, err := buildPayload(messages)
	if err != nil {
		return nil, err
	}
	return a.startStream(ctx, messagesRequest{
		Model:       model,
		MaxTokens:   maxTokensOr(p.MaxTokens),
		System:      system,
		Messages:    wire,
		Tools:       buildTools(tools),
		Temperature: p.Temperature,
		Stream:      true,
	}, true)
}

func (a *Adapter) Capabilities(model string) core.ModelCapabilities {
	a.capMu.Lock()
	defer a.capMu.Unlock()
	if c, ok := a.caps[model]; ok {
		return c
	}
	a.capComputes++
	c := classifyModel(model)
	a.caps[model] = c
	return c
}

// Close releases idle transport connections. Repeat calls are no-ops.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

func classifyModel(model string) core.ModelCapabilities {
	maxContext := 100000
	if strings.Contains(strings.ToLower(model), "opus") {
		maxContext = 200000
	}
	return core.ModelCapabilities{
		SupportsTools:      true,
		SupportsStreaming:  true,
		SupportsJSONSchema: true,
		SupportsImages:     true,
		MaxContextLength:   maxContext,
	}
}

func maxTokensOr(n int) int {
	if n > 0 {
		return n
	}
	return defaultMaxTokens
}

func (a *Adapter) complete(ctx context.Context, payload messagesRequest, messages []core.Message) (*core.GenerationResponse, error) {
	start := time.Now()
	body, err := a.do(ctx, payload)
	if err != nil {
		return nil, moderr.Map(err, "claude")
	}
	defer body.Close()

	var rr messagesResponse
	if err := json.NewDecoder(body).Decode(&rr); err != nil {
		return nil, moderr.Map(fmt.Errorf("decode response: %w", err), "claude")
	}
	resp, err := convertResponse(rr, messages)
	if err != nil {
		return nil, moderr.Map(err, "claude")
	}
	a.logger.Info("llm call",
		slog.String("provider", "claude"),
		slog.String("model", payload.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Int("tool_calls", len(resp.ToolCalls)),
		slog.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (a *Adapter) startStream(ctx context.Context, payload messagesRequest, includeUsage bool) (*core.Stream, error) {
	stream := core.NewStream(ctx, 64)
	body, err := a.do(stream.Context(), payload)
	if err != nil {
		_ = stream.Close()
		return nil, moderr.Map(err, "claude")
	}
	go a.consumeStream(body, stream, includeUsage)
	return stream, nil
}

func (a *Adapter) do(ctx context.Context, payload messagesRequest) (io.ReadCloser, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}
	req.Header.Set("anthropic-version", apiVersion)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &moderr.StatusError{
			Status:     resp.StatusCode,
			Body:       string(data),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func validateStructured(resp *core.GenerationResponse) (*core.GenerationResponse, error) {
	if json.Valid([]byte(resp.Content)) {
		return resp, nil
	}
	if repaired, ok := util.RepairJSON(resp.Content); ok && json.Valid([]byte(repaired)) {
		resp.Content = repaired
		return resp, nil
	}
	var probe any
	decErr := json.Unmarshal([]byte(resp.Content), &probe)
	err := moderr.Newf(moderr.KindStructuredOutput, "model did not return valid JSON: %v", decErr)
	err.Provider = "claude"
	return nil, err
}
