package core

import (
	"encoding/json"

	moderr "github.com/Morboz/auto-pilot/errors"
)

// rawBlock is the minimal shape the core reads out of opaque provider
// content: just enough to recover tool-use identifiers. Everything else
// in RawContent is carried forward without interpretation.
type rawBlock struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// rawAssistant covers the chat-completions family, where the native
// assistant state is an object with a tool_calls array rather than a
// block list.
type rawAssistant struct {
	ToolCalls []struct {
		ID string `json:"id"`
	} `json:"tool_calls"`
}

// assistantToolIDs extracts the tool-call identifiers one assistant
// message carries, whether canonically typed or buried in RawContent.
func assistantToolIDs(m Message) []string {
	var ids []string
	if m.Type == TypeToolUse && m.ToolUseID != "" {
		ids = append(ids, m.ToolUseID)
	}
	if len(m.RawContent) == 0 {
		return ids
	}
	var blocks []rawBlock
	if err := json.Unmarshal(m.RawContent, &blocks); err == nil {
		for _, b := range blocks {
			if b.Type == "tool_use" && b.ID != "" {
				ids = append(ids, b.ID)
			}
		}
		return ids
	}
	var obj rawAssistant
	if err := json.Unmarshal(m.RawContent, &obj); err == nil {
		for _, tc := range obj.ToolCalls {
			if tc.ID != "" {
				ids = append(ids, tc.ID)
			}
		}
	}
	return ids
}

func isToolResult(m Message) bool {
	return m.Type == TypeToolResult || m.Role == RoleTool
}

// ValidateToolResults enforces the tool-call orchestration invariant
// before any network activity: every tool-result message must carry a
// tool_use_id equal to one identifier issued by the immediately preceding
// assistant turn. Results may resolve simultaneous calls in any order,
// but an empty or unknown identifier fails with an invalid-request error
// rather than being silently dropped.
func ValidateToolResults(messages []Message) error {
	pending := map[string]struct{}{}
	prevAssistant := false
	for _, m := range messages {
		if m.Role == RoleAssistant {
			if !prevAssistant {
				pending = map[string]struct{}{}
			}
			prevAssistant = true
			for _, id := range assistantToolIDs(m) {
				pending[id] = struct{}{}
			}
			continue
		}
		prevAssistant = false
		if !isToolResult(m) {
			continue
		}
		if m.ToolUseID == "" {
			return moderr.Newf(moderr.KindInvalidRequest, "tool result %q is missing tool_use_id", m.Name)
		}
		if _, ok := pending[m.ToolUseID]; !ok {
			return moderr.Newf(moderr.KindInvalidRequest, "tool result %q references unknown tool_use_id %q", m.Name, m.ToolUseID)
		}
	}
	return nil
}
