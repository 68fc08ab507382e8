package llm

// TokenUsage accumulates token counts for one model across a turn. A turn can
// touch more than one model (the chat model plus the vision model), so usage
// is tracked per model identifier.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AccumulateTokenUsage adds a single call's usage into the per-model map,
// creating the entry on first use. Counts are only ever added, never reset,
// for the lifetime of the map.
func AccumulateTokenUsage(byModel map[string]*TokenUsage, model string, usage Usage) {
	u := byModel[model]
	if u == nil {
		u = &TokenUsage{}
		byModel[model] = u
	}
	u.InputTokens += usage.InputTokens
	u.OutputTokens += usage.OutputTokens
	u.TotalTokens += usage.TotalTokens
}
