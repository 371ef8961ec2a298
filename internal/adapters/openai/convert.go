package openai

import (
	"encoding/json"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
)

type chatRequest struct {
	Model            string           `json:"model"`
	Messages         []map[string]any `json:"messages"`
	Tools            []map[string]any `json:"tools,omitempty"`
	ToolChoice       string           `json:"tool_choice,omitempty"`
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature is always sent: zero means deterministic sampling, so
	// omitting it would silently fall back to the backend's own default.
	Temperature      float32 `json:"temperature"`
	TopP             float32          `json:"top_p,omitempty"`
	FrequencyPenalty float32          `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32          `json:"presence_penalty,omitempty"`
	ResponseFormat   map[string]any   `json:"response_format,omitempty"`
	Stream           bool             `json:"stream,omitempty"`
	StreamOptions    map[string]any   `json:"stream_options,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   any            `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func (u chatUsage) toCore() core.TokenUsage {
	return core.TokenUsage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

// buildMessages translates the canonical conversation into chat-completions
// wire form. Tool-result identifiers are validated against the preceding
// assistant turn before anything goes on the wire. Assistant messages
// carrying RawContent are emitted verbatim; consecutive canonical
// assistant messages collapse into one wire message so text and tool_calls
// share a turn the way the protocol expects.
func buildMessages(messages []core.Message) ([]map[string]any, error) {
	if err := core.ValidateToolResults(messages); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(messages))
	for i := 0; i < len(messages); {
		m := messages[i]

		if m.Type == core.TypeToolResult || m.Role == core.RoleTool {
			wire := map[string]any{
				"role":         "tool",
				"tool_call_id": m.ToolUseID,
				"content":      m.Content,
			}
			if m.Name != "" {
				wire["name"] = m.Name
			}
			out = append(out, wire)
			i++
			continue
		}

		if m.Role == core.RoleAssistant {
			var appended int
			out, appended = appendAssistantTurn(out, messages[i:])
			i += appended
			continue
		}

		wire := map[string]any{"role": string(m.Role), "content": m.Content}
		if m.Name != "" {
			wire["name"] = m.Name
		}
		out = append(out, wire)
		i++
	}
	return out, nil
}

// appendAssistantTurn consumes the maximal run of assistant messages
// starting at msgs[0] and returns the wire slice plus how many canonical
// messages were consumed.
func appendAssistantTurn(out []map[string]any, msgs []core.Message) ([]map[string]any, int) {
	var content string
	var toolCalls []map[string]any

	flush := func() {
		if content == "" && len(toolCalls) == 0 {
			return
		}
		wire := map[string]any{"role": "assistant", "content": content}
		if len(toolCalls) > 0 {
			wire["tool_calls"] = toolCalls
		}
		out = append(out, wire)
		content = ""
		toolCalls = nil
	}

	n := 0
	for _, m := range msgs {
		if m.Role != core.RoleAssistant || m.Type == core.TypeToolResult {
			break
		}
		n++
		if len(m.RawContent) > 0 {
			// Provider-native assistant state replays untouched; never
			// rebuilt from the canonical fields.
			flush()
			var obj map[string]any
			if err := json.Unmarshal(m.RawContent, &obj); err == nil {
				out = append(out, obj)
			} else {
				out = append(out, map[string]any{"role": "assistant", "content": m.Content})
			}
			continue
		}
		if m.Type == core.TypeToolUse {
			args := m.Content
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, map[string]any{
				"id":   m.ToolUseID,
				"type": "function",
				"function": map[string]any{
					"name":      m.Name,
					"arguments": args,
				},
			})
			continue
		}
		if content == "" {
			content = m.Content
		} else if m.Content != "" {
			content += "\n" + m.Content
		}
	}
	flush()
	return out, n
}

func buildTools(defs []core.ToolDefinition) []map[string]any {
	out := make([]map[string]any, len(defs))
	for i, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  params,
			},
		}
	}
	return out
}

// joinContent flattens the content field, which providers return either as
// a plain string or as a list of typed text parts.
func joinContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var acc string
		for _, p := range v {
			part, ok := p.(map[string]any)
			if !ok || part["type"] != "text" {
				continue
			}
			if s, ok := part["text"].(string); ok {
				if acc == "" {
					acc = s
				} else {
					acc += "\n" + s
				}
			}
		}
		return acc
	default:
		return ""
	}
}

// convertResponse maps a chat-completions response onto the canonical
// model and extends the conversation with the new assistant turn. Each
// tool call also lands in the conversation as a typed tool_use message so
// its identifier survives the round trip.
func convertResponse(rr chatResponse, messages []core.Message) (*core.GenerationResponse, error) {
	if len(rr.Choices) == 0 {
		return nil, moderr.New(moderr.KindProvider, "response contained no choices")
	}
	msg := rr.Choices[0].Message
	content := joinContent(msg.Content)

	extended := make([]core.Message, 0, len(messages)+1+len(msg.ToolCalls))
	extended = append(extended, messages...)
	extended = append(extended, core.Message{Role: core.RoleAssistant, Content: content})

	var toolCalls []core.ToolCall
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		raw := tc.Function.Arguments
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, moderr.Newf(moderr.KindInvalidRequest, "tool call %q carried malformed arguments: %v", tc.Function.Name, err)
			}
		}
		toolCalls = append(toolCalls, core.ToolCall{Name: tc.Function.Name, Arguments: args, ID: tc.ID})
		extended = append(extended, core.Message{
			Role:      core.RoleAssistant,
			Type:      core.TypeToolUse,
			Name:      tc.Function.Name,
			ToolUseID: tc.ID,
			Content:   argsOrEmpty(raw),
		})
	}

	return &core.GenerationResponse{
		Content:   content,
		Messages:  extended,
		Usage:     rr.Usage.toCore(),
		ToolCalls: toolCalls,
		Model:     rr.Model,
	}, nil
}

func argsOrEmpty(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

func schemaResponseFormat(schema map[string]any, strict bool) map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "structured_output",
			"schema": schema,
			"strict": strict,
		},
	}
}
