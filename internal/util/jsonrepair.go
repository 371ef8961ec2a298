package util

import "strings"

// RepairJSON applies minimal fixups to coerce a model response into valid
// JSON: strips markdown code fences and trims to the outermost object or
// array. Returns the possibly repaired string and whether it changed.
func RepairJSON(s string) (string, bool) {
	original := s
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
		s = strings.TrimSpace(s)
		if strings.HasPrefix(strings.ToLower(s), "json") {
			s = strings.TrimSpace(s[4:])
		}
	}

	// Conservative trim: from the first opening brace/bracket to the last
	// closing one. No real parsing; cheap and good enough for fence noise.
	start := strings.IndexAny(s, "{[")
	if start >= 0 {
		s = s[start:]
		end := strings.LastIndexAny(s, "}]")
		if end >= 0 {
			s = s[:end+1]
		}
	}

	return s, s != original
}
