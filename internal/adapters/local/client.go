// Package local implements the self-hosted adapter: an OpenAI-compatible
// wire protocol reached at a caller-supplied endpoint (Ollama, LM Studio,
// vLLM and friends). Credentials are optional; the endpoint is not.
// Features these backends commonly lack are covered by transparent
// fallbacks rather than errors, with the honest answer living in
// Capabilities.
package local

import (
	"context"
	"encoding/json"
	"sync"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/adapters/openai"
	"github.com/Morboz/auto-pilot/internal/core"
	"github.com/Morboz/auto-pilot/internal/util"
)

// Adapter wraps the chat-completions client with self-hosted defaults
// and fallbacks.
type Adapter struct {
	*openai.Adapter

	capMu sync.Mutex
	caps  map[string]core.ModelCapabilities
	// capComputes counts classifier runs; guarded by capMu.
	capComputes int
}

// New requires a base URL; there is no sensible default endpoint for a
// self-hosted deployment.
func New(opts core.Options) (*Adapter, error) {
	if opts.BaseURL == "" {
		return nil, moderr.New(moderr.KindConfiguration, "base_url is required for the local provider")
	}
	if opts.APIKey == "" {
		// Some OpenAI-compatible servers reject requests without a
		// bearer token even when they ignore its value.
		opts.APIKey = "local"
	}
	return &Adapter{
		Adapter: openai.NewCompat("local", opts),
		caps:    make(map[string]core.ModelCapabilities),
	}, nil
}

// StructuredGenerate first tries the native response_format channel; when
// the backend rejects the request, the schema is injected as a system
// instruction instead. Either way the response must parse as JSON.
func (a *Adapter) StructuredGenerate(ctx context.Context, model string, messages []core.Message, params core.StructuredGenerationParams) (*core.GenerationResponse, error) {
	resp, err := a.Adapter.StructuredGenerate(ctx, model, messages, params)
	if err == nil {
		return resp, nil
	}
	if moderr.IsStructuredOutput(err) {
		// The backend answered but the content was not JSON; a retry
		// through the prompt path would not be any stricter.
		return nil, err
	}

	schemaText, merr := json.MarshalIndent(params.Schema, "", "  ")
	if merr != nil {
		return nil, moderr.Wrap(moderr.KindInvalidRequest, "local", merr)
	}
	prompted := prependSystem(messages,
		"Please respond with valid JSON that matches this schema:\n"+string(schemaText))
	gp := core.GenerationParams{Temperature: params.Temperature, MaxTokens: params.MaxTokens}
	resp, err = a.Adapter.Generate(ctx, model, prompted, &gp)
	if err != nil {
		return nil, err
	}
	return validateStructured(resp)
}

// RunWithTools never sends a native tools array: most self-hosted models
// have no tool-calling head, so the catalog is described in the prompt
// and the model answers in free text. No structured tool_calls come back;
// Capabilities reports the limitation.
func (a *Adapter) RunWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.ToolExecutionParams) (*core.GenerationResponse, error) {
	p := core.DefaultToolExecutionParams()
	if params != nil {
		p = *params
	}
	prompted := prependSystem(messages, toolsPrompt(tools))
	gp := core.GenerationParams{Temperature: p.Temperature, MaxTokens: p.MaxTokens}
	return a.Adapter.Generate(ctx, model, prompted, &gp)
}

// StreamWithTools streams with the same free-text tool fallback.
func (a *Adapter) StreamWithTools(ctx context.Context, model string, messages []core.Message, tools []core.ToolDefinition, params *core.StreamParams) (*core.Stream, error) {
	prompted := prependSystem(messages, toolsPrompt(tools))
	return a.Adapter.Stream(ctx, model, prompted, params, &core.StreamOptions{IncludeUsage: true})
}

// Capabilities reports conservative defaults: self-hosted deployments
// vary too much to promise more from a model name alone.
func (a *Adapter) Capabilities(model string) core.ModelCapabilities {
	a.capMu.Lock()
	defer a.capMu.Unlock()
	if c, ok := a.caps[model]; ok {
		return c
	}
	a.capComputes++
	c := core.ModelCapabilities{
		SupportsTools:      false,
		SupportsStreaming:  true,
		SupportsJSONSchema: false,
		SupportsImages:     false,
		MaxContextLength:   32768,
	}
	a.caps[model] = c
	return c
}

func toolsPrompt(tools []core.ToolDefinition) string {
	prompt := "Available tools:\n"
	for _, t := range tools {
		schema, err := json.MarshalIndent(t.Parameters, "", "  ")
		if err != nil {
			schema = []byte("{}")
		}
		prompt += "- " + t.Name + ": " + t.Description + "\n  Parameters: " + string(schema) + "\n"
	}
	prompt += "\nIf you need to use a tool, describe what you would do. Format as:\n" +
		"Tool: <tool_name>\nArguments: <json_arguments>\n" +
		"Otherwise, provide your direct answer."
	return prompt
}

// prependSystem folds extra instructions into the conversation's system
// channel without mutating the caller's slice.
func prependSystem(messages []core.Message, instruction string) []core.Message {
	for i, m := range messages {
		if m.Role == core.RoleSystem {
			out := make([]core.Message, len(messages))
			copy(out, messages)
			out[i].Content = m.Content + "\n" + instruction
			return out
		}
	}
	out := make([]core.Message, 0, len(messages)+1)
	out = append(out, core.Message{Role: core.RoleSystem, Content: instruction})
	out = append(out, messages...)
	return out
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
	err.Provider = "local"
	return nil, err
}
