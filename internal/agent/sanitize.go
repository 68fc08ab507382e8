package agent

import (
	"encoding/json"

	"github.com/chris/lens/internal/llm"
)

// sanitizeArguments validates a tool call's raw JSON arguments against the
// tool's declared schema and returns only the arguments that pass. Model
// output is untrusted: hallucinated parameter names are dropped, as is any
// value whose JSON type doesn't match the declared string/boolean type.
// Unparsable JSON degrades to an empty set rather than failing the turn.
//
// After validation the two parameters every tool relies on are guaranteed:
// a missing query falls back to the user's raw utterance, and location is
// always present ("unknown" when the caller didn't supply one).
func sanitizeArguments(call llm.ToolCall, tool *llm.Tool, userMessage, location string) map[string]any {
	args := make(map[string]any)

	var raw map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &raw); err == nil {
		params := llm.ToolParams(tool)
		for name, value := range raw {
			spec, declared := params[name]
			if !declared {
				continue
			}
			// Only string and boolean exist in the catalog; init-time
			// validation in the llm package guarantees it.
			switch llm.ParamType(spec) {
			case "string":
				if s, ok := value.(string); ok {
					args[name] = s
				}
			case "boolean":
				if b, ok := value.(bool); ok {
					args[name] = b
				}
			}
		}
	}

	if _, ok := args[llm.QueryParam]; !ok {
		args[llm.QueryParam] = userMessage
	}
	if location == "" {
		location = "unknown"
	}
	args[llm.LocationParam] = location

	return args
}

// Typed argument accessors. Sanitized values are guaranteed well-typed, but
// a parameter the model omitted is simply absent, so zero values fall out
// naturally.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
