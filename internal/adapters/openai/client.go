// Package openai implements the chat-completions style adapter. It also
// backs the self-hosted adapter, which targets the same wire protocol at
// a caller-supplied endpoint.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter talks to a chat-completions style backend.
type Adapter struct {
	provider   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	capMu sync.Mutex
	caps  map[string]core.ModelCapabilities
	// capComputes counts classifier runs so tests can assert the cache
	// really short-circuits; guarded by capMu.
	capComputes int
	classify    func(model string) core.ModelCapabilities
}

// New constructs the first-party adapter.
func New(opts core.Options) *Adapter {
	return NewCompat("openai", opts)
}

// NewCompat constructs an adapter for any chat-completions compatible
// backend under a different provider label; the self-hosted adapter is
// built on it.
func NewCompat(provider string, opts core.Options) *Adapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpclient.New(opts.EffectiveTimeout())
	}
	return &Adapter{
		provider:   provider,
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		logger:     opts.EffectiveLogger(),
		caps:       make(map[string]core.ModelCapabilities),
		classify:   classifyModel,
	}
}

func (a *Adapter) Generate(ctx context.Context, model string, messages []core.Message, params *core.GenerationParams) (*core.GenerationResponse, error) {
	p := core.DefaultGenerationParams()
	if params != nil {
		p = *params
	}
	wire, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	return a.complete(ctx, chatRequest{
		Model:            model,
		Messages:         wire,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
	}, messages)
}

func (a *Adapter) StructuredGenerate(ctx context.Context, model string, messages []core.Message, params core.StructuredGenerationParams) (*core.GenerationResponse, error) {
	wire, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	resp, err := a.complete(ctx, chatRequest{
		Model:          model,
		Messages:       wire,
		Temperature:    params.Temperature,
		MaxTokens:      params.MaxTokens,
		ResponseFormat: schemaResponseFormat(params.Schema, params.Strict),
	}, messages)
	if err != nil {
		return nil, err
	}
	return validateStructured(resp, a.provider)
}

func (a *Adapter) RunWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.ToolExecutionParams) (*core.GenerationResponse, error) {
	p := core.DefaultToolExecutionParams()
	if params != nil {
		p = *params
	}
	wire, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	return a.complete(ctx, chatRequest{
		Model:       model,
		Messages:    wire,
		Tools:       buildTools(tools),
		ToolChoice:  string(p.ToolChoice),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, messages)
}

func (a *Adapter) Stream(ctx context.Context, model string, messages []core.Message, params *core.StreamParams, opts *core.StreamOptions) (*core.Stream, error) {
	p := core.DefaultStreamParams()
	if params != nil {
		p = *params
	}
	includeUsage := opts != nil && opts.IncludeUsage
	wire, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	payload := chatRequest{
		Model:       model,
		Messages:    wire,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      true,
	}
	if includeUsage {
		payload.StreamOptions = map[string]any{"include_usage": true}
	}
	return a.startStream(ctx, payload, includeUsage)
}

func (a *Adapter) StreamWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.StreamParams) (*core.Stream, error) {
	p := core.DefaultStreamParams()
	if params != nil {
		p = *params
	}
	wire, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}
	payload := chatRequest{
		Model:         model,
		Messages:      wire,
		Tools:         buildTools(tools),
		Temperature:   p.Temperature,
		MaxTokens:     p.MaxTokens,
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	}
	return a.startStream(ctx, payload, true)
}

func (a *Adapter) Capabilities(model string) core.ModelCapabilities {
	a.capMu.Lock()
	defer a.capMu.Unlock()
	if c, ok := a.caps[model]; ok {
		return c
	}
	a.capComputes++
	c := a.classify(model)
	a.caps[model] = c
	return c
}

// Close releases idle transport connections. Repeat calls are no-ops.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

func classifyModel(model string) core.ModelCapabilities {
	lower := strings.ToLower(model)
	return core.ModelCapabilities{
		SupportsTools:      true,
		SupportsStreaming:  true,
		SupportsJSONSchema: true,
		SupportsImages:     strings.Contains(lower, "4o") || strings.Contains(lower, "vision"),
		MaxContextLength:   128000,
	}
}

func (a *Adapter) complete(ctx context.Context, payload chatRequest, messages []core.Message) (*core.GenerationResponse, error) {
	start := time.Now()
	body, err := a.do(ctx, payload)
	if err != nil {
		return nil, moderr.Map(err, a.provider)
	}
	defer body.Close()

	var rr chatResponse
	if err := json.NewDecoder(body).Decode(&rr); err != nil {
		return nil, moderr.Map(fmt.Errorf("decode response: %w", err), a.provider)
	}
	resp, err := convertResponse(rr, messages)
	if err != nil {
		return nil, moderr.Map(err, a.provider)
	}
	a.logger.Info("llm call",
		slog.String("provider", a.provider),
		slog.String("model", payload.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Int("tool_calls", len(resp.ToolCalls)),
		slog.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (a *Adapter) startStream(ctx context.Context, payload chatRequest, includeUsage bool) (*core.Stream, error) {
	stream := core.NewStream(ctx, 64)
	body, err := a.do(stream.Context(), payload)
	if err != nil {
		_ = stream.Close()
		return nil, moderr.Map(err, a.provider)
	}
	go a.consumeStream(body, stream, includeUsage)
	return stream, nil
}

func (a *Adapter) do(ctx context.Context, payload chatRequest) (io.ReadCloser, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
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

// validateStructured enforces the structured-output contract shared by
// every adapter: the response content must parse as JSON, with fence
// stripping as the only forgiveness applied before failing.
func validateStructured(resp *core.GenerationResponse, provider string) (*core.GenerationResponse, error) {
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
	err.Provider = provider
	return nil, err
}
