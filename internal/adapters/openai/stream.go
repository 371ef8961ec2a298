package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
)

// blockState tracks which kind of content block the assembler is inside.
// Chat-completions streams have no explicit block events, so transitions
// are inferred from which delta fields arrive.
type blockState int

const (
	awaitingBlock blockState = iota
	inTextBlock
	inToolBlock
)

type streamDelta struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// consumeStream reassembles server-sent delta events into ordered chunks.
// Text deltas pass straight through; tool-call argument fragments are
// accumulated per block and surfaced as delta chunks, with one non-delta
// tool_call chunk emitted when the block closes. A transport fault yields
// exactly one error chunk and sets the stream's terminal error.
func (a *Adapter) consumeStream(body io.ReadCloser, stream *core.Stream, includeUsage bool) {
	defer body.Close()
	defer stream.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	state := awaitingBlock
	var acc *toolAccumulator
	accIndex := -1
	var usage *core.TokenUsage

	flushTool := func() {
		if acc == nil {
			return
		}
		call := a.finishToolCall(acc)
		stream.Push(core.StreamingChunk{Type: core.ChunkToolCall, ToolCall: call})
		acc = nil
		accIndex = -1
		state = awaitingBlock
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			flushTool()
			if includeUsage && usage != nil {
				stream.Push(core.StreamingChunk{Type: core.ChunkText, Usage: usage})
			}
			return
		}

		var delta streamDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			stream.Fail(moderr.Wrap(moderr.KindStreaming, a.provider, err))
			return
		}
		if delta.Usage != nil {
			u := delta.Usage.toCore()
			usage = &u
		}
		if len(delta.Choices) == 0 {
			continue
		}
		choice := delta.Choices[0]

		if choice.Delta.Content != "" {
			if state == inToolBlock {
				flushTool()
			}
			state = inTextBlock
			stream.Push(core.StreamingChunk{Type: core.ChunkText, Content: choice.Delta.Content, Delta: true})
		}

		for _, tc := range choice.Delta.ToolCalls {
			if state == inToolBlock && tc.Index != accIndex {
				flushTool()
			}
			if acc == nil {
				acc = &toolAccumulator{}
				accIndex = tc.Index
				state = inToolBlock
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
			}
			stream.Push(core.StreamingChunk{
				Type:     core.ChunkToolCall,
				Content:  tc.Function.Arguments,
				ToolCall: &core.ToolCall{Name: acc.name, ID: acc.id},
				Delta:    true,
			})
		}

		if choice.FinishReason != "" {
			flushTool()
		}
	}

	if err := scanner.Err(); err != nil {
		stream.Fail(moderr.Wrap(moderr.KindStreaming, a.provider, err))
	}
}

// finishToolCall closes an accumulator into a complete call. Backends
// occasionally omit the call identifier mid-stream; a synthesized one
// keeps the echo invariant workable for the caller.
func (a *Adapter) finishToolCall(acc *toolAccumulator) *core.ToolCall {
	args := map[string]any{}
	if payload := strings.TrimSpace(acc.args.String()); payload != "" {
		_ = json.Unmarshal([]byte(payload), &args)
	}
	id := acc.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return &core.ToolCall{Name: acc.name, Arguments: args, ID: id}
}
