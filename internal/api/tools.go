package api

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/modernity/internal/textgen"
)

// ToolDefinitions converts provider-neutral tool descriptions into
// Anthropic tool schemas.
func ToolDefinitions(tools []textgen.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: map[string]interface{}{},
		}
		if props, ok := t.InputSchema["properties"]; ok && props != nil {
			schema.Properties = props
		}
		schema.Required = requiredFields(t.InputSchema["required"])

		param := &anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: param})
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
