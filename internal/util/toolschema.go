package util

import (
	"reflect"
	"strings"
)

// ToolSchema builds a JSON Schema object for a tool's arguments directly
// from a struct type, honoring json, description, and required tags.
// Pointer fields are optional by default. Non-struct input yields an
// empty object schema.
func ToolSchema(paramStruct any) map[string]any {
	props := map[string]any{}
	required := make([]string, 0)

	if paramStruct != nil {
		t := reflect.TypeOf(paramStruct)
		if t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Kind() == reflect.Struct {
			for i := 0; i < t.NumField(); i++ {
				field := t.Field(i)
				if !field.IsExported() {
					continue
				}
				jsonTag := field.Tag.Get("json")
				if jsonTag == "-" {
					continue
				}
				name := field.Name
				if jsonTag != "" {
					if parts := strings.Split(jsonTag, ","); parts[0] != "" {
						name = parts[0]
					}
				}
				fieldSchema := schemaForType(field.Type)
				if desc := field.Tag.Get("description"); desc != "" {
					fieldSchema["description"] = desc
				}
				props[name] = fieldSchema

				req := field.Type.Kind() != reflect.Ptr
				switch field.Tag.Get("required") {
				case "true":
					req = true
				case "false":
					req = false
				}
				if req {
					required = append(required, name)
				}
			}
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func schemaForType(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": schemaForType(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object"}
	case reflect.Struct:
		return ToolSchema(reflect.New(t).Interface())
	default:
		return map[string]any{"type": "string"}
	}
}
