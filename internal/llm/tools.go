package llm

import "fmt"

// Tool and parameter names are wire contract with the model: it has learned
// these exact strings, so renaming any of them is a breaking change.
const (
	GeneralKnowledgeToolName = "general_knowledge_search"
	SearchToolName           = "search"
	PhotoToolName            = "analyze_photo"

	QueryParam        = "query"
	LocationParam     = "location"
	ReverseImageParam = "google_reverse_image_search"
	TranslateParam    = "translate"
)

// AgentTools is the fixed tool catalog advertised on the first completion
// call of every turn.
//
// general_knowledge_search exists to keep the model from over-searching: the
// web has information on virtually everything, so without it the model
// reaches for the search tool even for facts it has baked in. Giving it a
// "general knowledge" tool that covers anything an encyclopedia would lets
// it route those queries here; the handler returns an empty string and the
// model answers from its own knowledge on the second call.
var AgentTools = []Tool{
	{
		Name:        GeneralKnowledgeToolName,
		Description: "Trivial and general knowledge that would be expected to exist in Wikipedia or an encyclopedia",
		Parameters: objReq(map[string]any{
			QueryParam: prop("string", "search query"),
		}, QueryParam),
	},
	{
		Name:        SearchToolName,
		Description: "Provides up to date information on news, retail products, current events, and esoteric knowledge",
		Parameters: objReq(map[string]any{
			QueryParam: prop("string", "search query"),
		}, QueryParam),
	},
	{
		Name: PhotoToolName,
		Description: "Analyzes or describes the photo you have from the user's current perspective. " +
			"Use this tool if user refers to something not identifiable from conversation context, such as with a demonstrative pronoun.",
		Parameters: objReq(map[string]any{
			QueryParam:        prop("string", "User's query to answer, describing what they want answered, expressed as a command that NEVER refers to the photo or image itself"),
			ReverseImageParam: prop("boolean", "True ONLY if user wants to look up facts about contents of photo online (simply identifying what is in the photo does not count), otherwise always false"),
			TranslateParam:    prop("boolean", "Translation of something in user's view required"),
		}, QueryParam, ReverseImageParam, TranslateParam),
	},
}

// FindTool returns the catalog entry for name, or nil if the model
// hallucinated a tool that does not exist.
func FindTool(name string) *Tool {
	for i := range AgentTools {
		if AgentTools[i].Name == name {
			return &AgentTools[i]
		}
	}
	return nil
}

// ToolParams returns the declared parameter properties of a tool schema.
func ToolParams(t *Tool) map[string]any {
	props, _ := t.Parameters["properties"].(map[string]any)
	return props
}

// ParamType returns the declared JSON-schema type of a single parameter.
func ParamType(spec any) string {
	m, _ := spec.(map[string]any)
	typ, _ := m["type"].(string)
	return typ
}

func init() {
	// The sanitizer only understands string and boolean parameters. Any other
	// type in the catalog is a definition bug, caught here on first import
	// rather than on some unlucky tool call in production.
	for _, t := range AgentTools {
		for name, spec := range ToolParams(&t) {
			switch ParamType(spec) {
			case "string", "boolean":
			default:
				panic(fmt.Sprintf("tool %s: unsupported parameter type %q for %q", t.Name, ParamType(spec), name))
			}
		}
	}
}

// Helper functions for building JSON Schema objects.

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func obj(properties map[string]any) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}

func objReq(properties map[string]any, required ...string) map[string]any {
	s := obj(properties)
	s["required"] = required
	return s
}
