package claude

import (
	"encoding/json"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
)

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []wireMessage    `json:"messages"`
	Tools      []map[string]any `json:"tools,omitempty"`
	ToolChoice map[string]any   `json:"tool_choice,omitempty"`
	// Temperature is always sent: zero means deterministic sampling, so
	// omitting it would silently fall back to the backend's own default.
	Temperature float32 `json:"temperature"`
	TopP        float32          `json:"top_p,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// wireMessage keeps content as raw JSON so preserved provider blocks go
// back out byte-for-byte while reconstructed content is marshaled fresh.
type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type messagesResponse struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Content    json.RawMessage `json:"content"`
	Usage      messagesUsage   `json:"usage"`
}

type messagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u messagesUsage) toCore() core.TokenUsage {
	return core.TokenUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}

// buildPayload splits system messages into the dedicated system channel
// and translates the rest into messages-API turns. Tool-result
// identifiers are validated before anything goes on the wire. An
// assistant message carrying RawContent replays those blocks untouched:
// the protocol rejects tool results whose preceding turn lost its
// reasoning or tool-use blocks, so reconstruction from plain text only
// happens when no raw blocks were captured.
func buildPayload(messages []core.Message) (string, []wireMessage, error) {
	if err := core.ValidateToolResults(messages); err != nil {
		return "", nil, err
	}

	var systemParts []string
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == core.RoleSystem:
			systemParts = append(systemParts, m.Content)

		case m.Type == core.TypeToolResult || m.Role == core.RoleTool:
			block := map[string]any{
				"type":        "tool_result",
				"tool_use_id": m.ToolUseID,
				"content":     m.Content,
			}
			content, err := json.Marshal([]map[string]any{block})
			if err != nil {
				return "", nil, moderr.Wrap(moderr.KindInvalidRequest, "claude", err)
			}
			out = append(out, wireMessage{Role: "user", Content: content})

		case m.Role == core.RoleAssistant:
			if len(m.RawContent) > 0 {
				out = append(out, wireMessage{Role: "assistant", Content: m.RawContent})
				continue
			}
			blocks := reconstructAssistant(m)
			if len(blocks) == 0 {
				continue
			}
			content, err := json.Marshal(blocks)
			if err != nil {
				return "", nil, moderr.Wrap(moderr.KindInvalidRequest, "claude", err)
			}
			out = append(out, wireMessage{Role: "assistant", Content: content})

		default:
			content, err := json.Marshal(m.Content)
			if err != nil {
				return "", nil, moderr.Wrap(moderr.KindInvalidRequest, "claude", err)
			}
			out = append(out, wireMessage{Role: string(m.Role), Content: content})
		}
	}

	system := ""
	if len(systemParts) > 0 {
		system = joinLines(systemParts)
	}
	return system, out, nil
}

// reconstructAssistant rebuilds wire blocks from canonical fields. Only
// used when no RawContent was captured for the turn.
func reconstructAssistant(m core.Message) []map[string]any {
	switch m.Type {
	case core.TypeToolUse:
		input := map[string]any{}
		if m.Content != "" {
			_ = json.Unmarshal([]byte(m.Content), &input)
		}
		return []map[string]any{{
			"type":  "tool_use",
			"id":    m.ToolUseID,
			"name":  m.Name,
			"input": input,
		}}
	case core.TypeThought:
		// Thinking blocks cannot be rebuilt without their signatures;
		// replaying them as text at least keeps the words in context.
		if m.Content == "" {
			return nil
		}
		return []map[string]any{{"type": "text", "text": m.Content}}
	default:
		if m.Content == "" {
			return nil
		}
		return []map[string]any{{"type": "text", "text": m.Content}}
	}
}

func joinLines(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}

func buildTools(defs []core.ToolDefinition) []map[string]any {
	out := make([]map[string]any, len(defs))
	for i, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = map[string]any{
			"name":         d.Name,
			"description":  d.Description,
			"input_schema": params,
		}
	}
	return out
}

// convertResponse maps a messages-API response onto the canonical model.
// The full block list lands verbatim in the new assistant message's
// RawContent so thinking and tool-use blocks replay intact on the next
// turn; text blocks are concatenated for the caller-facing content.
func convertResponse(rr messagesResponse, messages []core.Message) (*core.GenerationResponse, error) {
	var blocks []contentBlock
	if err := json.Unmarshal(rr.Content, &blocks); err != nil {
		return nil, moderr.Newf(moderr.KindProvider, "malformed content blocks: %v", err)
	}

	var content string
	var toolCalls []core.ToolCall
	for _, b := range blocks {
		switch b.Type {
		case "text":
			content += b.Text
		case "tool_use":
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, core.ToolCall{Name: b.Name, Arguments: args, ID: b.ID})
		}
	}

	extended := make([]core.Message, 0, len(messages)+1)
	extended = append(extended, messages...)
	extended = append(extended, core.Message{
		Role:       core.RoleAssistant,
		Content:    content,
		RawContent: rr.Content,
	})

	return &core.GenerationResponse{
		Content:   content,
		Messages:  extended,
		Usage:     rr.Usage.toCore(),
		ToolCalls: toolCalls,
		Model:     rr.Model,
	}, nil
}
