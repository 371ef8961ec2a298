// Package autopilot provides a unified adapter layer for generative-model
// providers. It normalizes text generation, schema-constrained generation,
// tool-calling rounds, and streaming across chat-completions style,
// messages style, and self-hosted OpenAI-compatible backends behind one
// capability contract.
//
// The package is an outbound client abstraction only: it keeps no
// conversation state, executes no tools, retries nothing, and listens on
// nothing. Callers resend the full conversation on every call and own
// every returned message sequence.
package autopilot

import (
	"github.com/Morboz/auto-pilot/internal/core"
	"github.com/Morboz/auto-pilot/internal/util"
)

// Core conversation and response types.
type (
	Message            = core.Message
	Role               = core.Role
	MessageType        = core.MessageType
	ToolCall           = core.ToolCall
	ToolResult         = core.ToolResult
	TokenUsage         = core.TokenUsage
	ModelCapabilities  = core.ModelCapabilities
	GenerationResponse = core.GenerationResponse
	StreamingChunk     = core.StreamingChunk
	ChunkType          = core.ChunkType
	Stream             = core.Stream
)

// Per-call parameter types. All are immutable inputs; none are retained.
type (
	GenerationParams           = core.GenerationParams
	StructuredGenerationParams = core.StructuredGenerationParams
	ToolDefinition             = core.ToolDefinition
	ToolChoice                 = core.ToolChoice
	ToolExecutionParams        = core.ToolExecutionParams
	StreamParams               = core.StreamParams
	StreamOptions              = core.StreamOptions
)

// Adapter is the capability contract implemented by every provider.
type Adapter = core.Adapter

// Config carries adapter construction settings.
type Config = core.Options

const (
	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleTool      = core.RoleTool

	TypeThought    = core.TypeThought
	TypeToolUse    = core.TypeToolUse
	TypeToolResult = core.TypeToolResult

	ChunkText       = core.ChunkText
	ChunkToolCall   = core.ChunkToolCall
	ChunkToolResult = core.ChunkToolResult
	ChunkError      = core.ChunkError

	ToolChoiceAuto = core.ToolChoiceAuto
	ToolChoiceNone = core.ToolChoiceNone
)

// Documented parameter defaults.
var (
	DefaultGenerationParams           = core.DefaultGenerationParams
	DefaultStructuredGenerationParams = core.DefaultStructuredGenerationParams
	DefaultToolExecutionParams        = core.DefaultToolExecutionParams
	DefaultStreamParams               = core.DefaultStreamParams
)

// SchemaFor reflects a JSON schema from a struct pointer for use in
// StructuredGenerationParams.
func SchemaFor(obj any) map[string]any {
	return util.GenerateJSONSchema(obj)
}

// ToolFor builds a ToolDefinition whose parameter schema is derived from
// a struct type, honoring json, description, and required tags.
func ToolFor(name, description string, paramStruct any) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  util.ToolSchema(paramStruct),
	}
}
