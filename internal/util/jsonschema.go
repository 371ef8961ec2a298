package util

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema reflects a JSON schema from obj, which should be a
// pointer to a struct so fields and tags are captured. The result is a
// plain map ready to embed in provider payloads.
func GenerateJSONSchema(obj any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(obj)
	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(out, "$schema")
	return out
}
