package core

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageType refines a message beyond its role for ReAct conversations.
// The zero value means a plain text message.
type MessageType string

const (
	TypeThought    MessageType = "thought"
	TypeToolUse    MessageType = "tool_use"
	TypeToolResult MessageType = "tool_result"
)

// Message is the canonical conversation unit shared by all adapters.
//
// RawContent holds the provider-native block structure exactly as the
// provider returned it. When set, it wins over Content on re-serialization
// to the same provider family: reconstructing blocks from plain text drops
// reasoning and tool-use blocks, which breaks interleaved-thinking
// continuity and can get the request rejected outright. The core never
// interprets RawContent beyond scanning it for tool-use identifiers.
type Message struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content,omitempty"`
	Type       MessageType     `json:"type,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	RawContent json.RawMessage `json:"raw_content,omitempty"`
}

// ToolCall is a provider-issued request to invoke a tool. ID, once issued,
// must be echoed unchanged on the matching tool-result message.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	ID        string         `json:"id,omitempty"`
}

// ToolResult carries the outcome of a caller-side tool execution.
type ToolResult struct {
	Name    string `json:"name"`
	Result  any    `json:"result"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TokenUsage tracks token consumption for a single call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total is always derived; it is never stored independently.
func (u TokenUsage) Total() int { return u.InputTokens + u.OutputTokens }

// ModelCapabilities describes what a given model supports. It is a pure
// function of the model name per adapter and is cached per instance.
type ModelCapabilities struct {
	SupportsTools      bool `json:"supports_tools"`
	SupportsStreaming  bool `json:"supports_streaming"`
	SupportsJSONSchema bool `json:"supports_json_schema"`
	SupportsImages     bool `json:"supports_images"`
	MaxContextLength   int  `json:"max_context_length,omitempty"`
}

// GenerationResponse is the result of a non-streaming adapter call.
// Messages is the extended conversation (input plus the new assistant
// turn); the caller owns it, the adapter retains nothing after returning.
type GenerationResponse struct {
	Content   string
	Messages  []Message
	Usage     TokenUsage
	ToolCalls []ToolCall
	Model     string
}

// ChunkType enumerates streaming chunk kinds.
type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkError      ChunkType = "error"
)

// StreamingChunk is one element of a streaming response.
//
// Delta=true marks an incremental fragment: Content carries a text or
// partial-argument fragment that is not meaningful on its own. Tool-call
// argument fragments in particular must not be parsed as JSON until the
// non-delta chunk that closes the block arrives with ToolCall populated.
type StreamingChunk struct {
	Type     ChunkType   `json:"type"`
	Content  string      `json:"content,omitempty"`
	ToolCall *ToolCall   `json:"tool_call,omitempty"`
	Usage    *TokenUsage `json:"usage,omitempty"`
	Err      string      `json:"error,omitempty"`
	Delta    bool        `json:"delta"`
}

// GenerationParams tunes plain text generation.
type GenerationParams struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// DefaultGenerationParams returns the documented defaults.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{Temperature: 0.7, TopP: 1.0}
}

// StructuredGenerationParams constrains output to a JSON schema.
type StructuredGenerationParams struct {
	Schema      map[string]any
	Strict      bool
	Temperature float32
	MaxTokens   int
}

// DefaultStructuredGenerationParams returns the documented defaults.
// Schema must still be set by the caller.
func DefaultStructuredGenerationParams() StructuredGenerationParams {
	return StructuredGenerationParams{Strict: true}
}

// ToolDefinition describes one callable tool. Parameters is a JSON Schema
// object for the tool's arguments.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice controls whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ToolExecutionParams tunes a tool-calling round.
type ToolExecutionParams struct {
	ToolChoice  ToolChoice
	Temperature float32
	MaxTokens   int
}

// DefaultToolExecutionParams returns the documented defaults.
func DefaultToolExecutionParams() ToolExecutionParams {
	return ToolExecutionParams{ToolChoice: ToolChoiceAuto}
}

// StreamParams tunes streaming generation.
type StreamParams struct {
	Temperature float32
	MaxTokens   int
}

// DefaultStreamParams returns the documented defaults.
func DefaultStreamParams() StreamParams {
	return StreamParams{Temperature: 0.7}
}

// StreamOptions toggles optional stream behavior.
type StreamOptions struct {
	// IncludeUsage requests one final non-delta chunk carrying token usage.
	IncludeUsage bool
}

// Adapter is the capability contract every provider implements.
//
// All operations accept the full conversation on every call; adapters are
// stateless transport, not sessions. Close is idempotent; behavior of the
// other operations after Close is undefined.
type Adapter interface {
	Generate(ctx context.Context, model string, messages []Message, params *GenerationParams) (*GenerationResponse, error)
	StructuredGenerate(ctx context.Context, model string, messages []Message, params StructuredGenerationParams) (*GenerationResponse, error)
	RunWithTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, params *ToolExecutionParams) (*GenerationResponse, error)
	Stream(ctx context.Context, model string, messages []Message, params *StreamParams, opts *StreamOptions) (*Stream, error)
	StreamWithTools(ctx context.Context, model string, messages []Message, tools []ToolDefinition, params *StreamParams) (*Stream, error)
	Capabilities(model string) ModelCapabilities
	Close() error
}
