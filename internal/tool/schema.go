package tool

import "github.com/telebiz/agentcore/internal/domain"

// Object builds an object schema with the given properties.
func Object(props map[string]any, required ...string) domain.JSONSchema {
	s := domain.JSONSchema{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// String describes a string property.
func String(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Number describes a numeric property.
func Number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

// Boolean describes a boolean property.
func Boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

// Enum describes a string property restricted to values.
func Enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

// Array describes a list property.
func Array(desc string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": items}
}

// Def is shorthand for a ToolDefinition.
func Def(name, description string, params domain.JSONSchema) domain.ToolDefinition {
	return domain.ToolDefinition{Name: name, Description: description, Parameters: params}
}
