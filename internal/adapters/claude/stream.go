package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/core"
)

// blockState follows the messages-API block protocol: a content_block_start
// opens a text or tool block, deltas land inside it, content_block_stop
// closes it, and message_stop ends the stream.
type blockState int

const (
	awaitingBlock blockState = iota
	inTextBlock
	inToolBlock
)

type eventBlockStart struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type  string         `json:"type"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content_block"`
}

type eventBlockDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type eventMessageDelta struct {
	Usage messagesUsage `json:"usage"`
}

type eventMessageStart struct {
	Message struct {
		Usage messagesUsage `json:"usage"`
	} `json:"message"`
}

type toolAccumulator struct {
	id    string
	name  string
	input map[string]any
	args  strings.Builder
}

// consumeStream reassembles block-level server-sent events into ordered
// chunks. Thinking deltas surface as text chunks so reasoning commentary
// keeps its position ahead of the tool calls it precedes. A transport
// fault yields exactly one error chunk and sets the terminal error.
func (a *Adapter) consumeStream(body io.ReadCloser, stream *core.Stream, includeUsage bool) {
	defer body.Close()
	defer stream.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

	state := awaitingBlock
	var acc *toolAccumulator
	usage := messagesUsage{}
	currentEvent := ""

	fail := func(err error) {
		stream.Fail(moderr.Wrap(moderr.KindStreaming, "claude", err))
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		switch currentEvent {
		case "message_start":
			var start eventMessageStart
			if err := json.Unmarshal([]byte(data), &start); err != nil {
				fail(err)
				return
			}
			mergeUsage(&usage, start.Message.Usage)

		case "content_block_start":
			var start eventBlockStart
			if err := json.Unmarshal([]byte(data), &start); err != nil {
				fail(err)
				return
			}
			switch start.ContentBlock.Type {
			case "tool_use":
				acc = &toolAccumulator{
					id:    start.ContentBlock.ID,
					name:  start.ContentBlock.Name,
					input: start.ContentBlock.Input,
				}
				state = inToolBlock
			default:
				state = inTextBlock
			}

		case "content_block_delta":
			var delta eventBlockDelta
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				fail(err)
				return
			}
			switch delta.Delta.Type {
			case "text_delta":
				if delta.Delta.Text != "" {
					stream.Push(core.StreamingChunk{Type: core.ChunkText, Content: delta.Delta.Text, Delta: true})
				}
			case "thinking_delta":
				if delta.Delta.Thinking != "" {
					stream.Push(core.StreamingChunk{Type: core.ChunkText, Content: delta.Delta.Thinking, Delta: true})
				}
			case "input_json_delta":
				if state != inToolBlock || acc == nil {
					continue
				}
				acc.args.WriteString(delta.Delta.PartialJSON)
				stream.Push(core.StreamingChunk{
					Type:     core.ChunkToolCall,
					Content:  delta.Delta.PartialJSON,
					ToolCall: &core.ToolCall{Name: acc.name, ID: acc.id},
					Delta:    true,
				})
			}

		case "content_block_stop":
			if state == inToolBlock && acc != nil {
				stream.Push(core.StreamingChunk{Type: core.ChunkToolCall, ToolCall: finishToolCall(acc)})
				acc = nil
			}
			state = awaitingBlock

		case "message_delta":
			var delta eventMessageDelta
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				fail(err)
				return
			}
			mergeUsage(&usage, delta.Usage)

		case "message_stop":
			if includeUsage {
				u := usage.toCore()
				stream.Push(core.StreamingChunk{Type: core.ChunkText, Usage: &u})
			}
			return

		case "error":
			fail(fmt.Errorf("stream error event: %s", data))
			return
		}
	}

	if err := scanner.Err(); err != nil {
		fail(err)
	}
}

// mergeUsage keeps the largest counts seen; providers report input tokens
// at message_start and output tokens cumulatively in message_delta.
func mergeUsage(into *messagesUsage, u messagesUsage) {
	if u.InputTokens > into.InputTokens {
		into.InputTokens = u.InputTokens
	}
	if u.OutputTokens > into.OutputTokens {
		into.OutputTokens = u.OutputTokens
	}
}

func finishToolCall(acc *toolAccumulator) *core.ToolCall {
	args := acc.input
	if payload := strings.TrimSpace(acc.args.String()); payload != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
			args = parsed
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	id := acc.id
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}
	return &core.ToolCall{Name: acc.name, Arguments: args, ID: id}
}
