package llm

// Retention budgets for PruneHistory. Keeping every assistant reply adds
// little coherence per token; a handful of recent user messages is enough to
// hold a conversation together.
const (
	maxAssistantMessages = 3
	maxUserMessages      = 5
)

// PruneHistory bounds a conversation to the most recent user and assistant
// messages, dropping older ones once each role's budget is spent. System
// messages and tool results always pass through, and surviving messages keep
// their original relative order.
//
// The input slice is filtered in place and the same backing array is
// returned; callers that need the original must copy first. Pruning an
// already-pruned history is a no-op.
func PruneHistory(messages []Message) []Message {
	assistantRemaining := maxAssistantMessages
	userRemaining := maxUserMessages

	// Walk newest to oldest so the budgets spend on recent messages, marking
	// what survives, then compact front to back to preserve order.
	keep := make([]bool, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case RoleAssistant:
			if assistantRemaining > 0 {
				assistantRemaining--
				keep[i] = true
			}
		case RoleUser:
			if userRemaining > 0 {
				userRemaining--
				keep[i] = true
			}
		default:
			keep[i] = true
		}
	}

	out := messages[:0]
	for i, m := range messages {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}
