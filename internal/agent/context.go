package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chris/lens/internal/llm"
)

// Disclaimers substituted into the grounding block when time or location are
// unknown, so the model owns up instead of guessing.
const (
	timeUnknownNote     = "If asked, tell user you don't know current date or time because clock is broken"
	locationUnknownNote = "You do not know user's location and if asked, tell them so"
)

// LearnedContextKeys is the closed set of user facts the extraction step
// looks for. Key names appear verbatim in the grounding block.
var LearnedContextKeys = map[string]string{
	"UserName": "User's name",
	"DOB":      "User's date of birth",
	"Food":     "Foods and drinks user has expressed interest in",
}

// contextMessage builds the grounding block injected as an extra system
// message: current time and location first (with disclaimers when unknown),
// then learned facts. The two fixed keys are reserved; a learned fact cannot
// override them. Learned keys are emitted in sorted order so the block is
// deterministic.
func contextMessage(localTime, location string, learned map[string]string) string {
	var b strings.Builder
	b.WriteString(llm.ContextPrefix)

	if localTime == "" {
		localTime = timeUnknownNote
	}
	if location == "" {
		location = locationUnknownNote
	}
	fmt.Fprintf(&b, "<current_time>%s</current_time>\n", localTime)
	fmt.Fprintf(&b, "<location>%s</location>", location)

	keys := make([]string, 0, len(learned))
	for k := range learned {
		if k == "current_time" || k == "location" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if learned[k] == "" {
			continue
		}
		fmt.Fprintf(&b, "\n<%s>%s</%s>", k, learned[k], k)
	}

	return b.String()
}

// extractionPrompt assembles the system prompt for the fact-extraction side
// call from the key catalog.
func extractionPrompt() string {
	keys := make([]string, 0, len(LearnedContextKeys))
	for k := range LearnedContextKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Given a transcript of what the user said, look for any of the following information being revealed:\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, LearnedContextKeys[k])
	}
	b.WriteString("\nMake sure to list them in this format:\n\nKEY=VALUE\n\n")
	b.WriteString(`If nothing was found, just say "END". ONLY PRODUCE ITEMS WHEN THE USER HAS ACTUALLY REVEALED THEM.`)
	return b.String()
}

// maxExtractionMessages bounds how much user history the extraction call sees.
const maxExtractionMessages = 2

// extractLearnedContext runs a side completion over the most recent user
// messages and parses any KEY=VALUE facts it reports. Unknown keys and
// malformed lines are ignored. Token usage counts against the turn.
func (t *turn) extractLearnedContext(ctx context.Context, history []llm.Message) (map[string]string, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: extractionPrompt()}}

	var recent []llm.Message
	for i := len(history) - 1; i >= 0 && len(recent) < maxExtractionMessages; i-- {
		if history[i].Role == llm.RoleUser && history[i].ToolCallID == "" {
			recent = append(recent, history[i])
		}
	}
	// Collected newest-first; replay oldest-first.
	for i := len(recent) - 1; i >= 0; i-- {
		messages = append(messages, recent[i])
	}

	resp, err := t.agent.client.Chat(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}
	t.addUsage(t.agent.model, resp.Usage)

	return parseLearnedContext(resp.Content), nil
}

// parseLearnedContext turns the extraction model's KEY=VALUE lines into a
// fact map, keeping only keys from the closed catalog. A repeated key keeps
// its last value.
func parseLearnedContext(content string) map[string]string {
	learned := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || value == "" {
			continue
		}
		if _, known := LearnedContextKeys[key]; known {
			learned[key] = value
		}
	}
	return learned
}
