package agent

import (
	"context"
	"math"
	"time"

	"github.com/chris/lens/internal/llm"
	"github.com/chris/lens/internal/search"
)

// hallucinatedToolMessage is threaded back as the tool's response when the
// model invents a tool name. The second completion turns it into a natural
// ask-to-rephrase answer.
const hallucinatedToolMessage = "Error: you hallucinated a tool that doesn't exist. Tell user you had trouble interpreting the request and ask them to rephrase it."

// handleToolCall resolves one model-requested tool call against the fixed
// catalog, sanitizes its arguments, runs the handler, and records capability
// and debug metadata. The returned string is the tool-role message content.
// An error means a backend failed; that aborts the turn at the fan-in.
func (t *turn) handleToolCall(ctx context.Context, call llm.ToolCall) (string, error) {
	tool := llm.FindTool(call.Name)
	if tool == nil {
		t.addToolRecord(map[string]any{"tool": call.Name, "hallucinated": "true"})
		return hallucinatedToolMessage, nil
	}

	args := sanitizeArguments(call, tool, t.env.userMessage, t.env.location)

	start := time.Now()
	var output, searchMeta string

	// Closed dispatch: the catalog is a fixed contract, so tool kinds are a
	// switch, not a lookup that can grow at runtime. The photo tool records
	// its own capability because it branches internally.
	switch call.Name {
	case llm.SearchToolName:
		res, err := t.agent.search.Search(ctx, search.Request{
			Query:    argString(args, llm.QueryParam),
			Location: argString(args, llm.LocationParam),
		})
		if err != nil {
			return "", err
		}
		output, searchMeta = res.Summary, res.Provider
		t.addCapability(CapabilityWebSearch)

	case llm.GeneralKnowledgeToolName:
		output = handleGeneralKnowledge()
		t.addCapability(CapabilityAssistantKnowledge)

	case llm.PhotoToolName:
		var err error
		output, searchMeta, err = t.photoTool(ctx, args)
		if err != nil {
			return "", err
		}
	}

	t.addToolRecord(toolRecord(call.Name, args, len(t.env.image) > 0 && call.Name == llm.PhotoToolName, time.Since(start), searchMeta))

	return output, nil
}

// handleGeneralKnowledge answers nothing on purpose: the empty tool output
// forces the model to produce the answer itself on the second completion,
// which is the whole point of advertising a general-knowledge tool.
func handleGeneralKnowledge() string {
	return ""
}

// toolRecord builds one debug-trace entry. Arguments are copied; the image,
// when one was in play, appears only as a placeholder since raw bytes have no
// business in a diagnostic payload.
func toolRecord(name string, args map[string]any, hadImage bool, elapsed time.Duration, searchMeta string) map[string]any {
	argsCopy := make(map[string]any, len(args)+1)
	for k, v := range args {
		argsCopy[k] = v
	}
	if hadImage {
		argsCopy["image"] = "<bytes>"
	}

	record := map[string]any{
		"tool":      name,
		"tool_args": argsCopy,
		"tool_time": math.Round(elapsed.Seconds()*1000) / 1000,
	}
	if searchMeta != "" {
		record["search_result"] = searchMeta
	}
	return record
}
