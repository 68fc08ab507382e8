package discord

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/chris/lens/internal/agent"
	"github.com/chris/lens/internal/llm"
)

// Attachments larger than this are ignored rather than shipped to the vision
// backend.
const maxImageBytes = 8 << 20

// Per-channel conversation history. Text only: tool exchanges and grounding
// messages are turn-internal and never stored here.
var (
	histories   = make(map[string][]llm.Message)
	historiesMu sync.Mutex
)

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author.ID == s.State.User.ID {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}

	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" && len(m.Attachments) == 0 {
		return
	}

	// Show typing indicator
	s.ChannelTyping(m.ChannelID)

	image := fetchImageAttachment(m)

	var facts map[string]string
	if b.db != nil {
		var err error
		facts, err = b.db.GetFacts(m.Author.ID)
		if err != nil {
			log.Printf("loading facts for %s: %v", m.Author.ID, err)
		}
	}

	historiesMu.Lock()
	history := histories[m.ChannelID]
	historiesMu.Unlock()

	resp, err := b.agent.Assist(context.Background(), agent.Request{
		Prompt:         content,
		Image:          image,
		History:        history,
		LocalTime:      time.Now().Format("Monday, January 2, 2006, 3:04 PM"),
		LearnedContext: facts,
	})
	if err != nil {
		log.Printf("agent error: %v", err)
		s.ChannelMessageSend(m.ChannelID, "Something went wrong. Try again?")
		return
	}

	if b.db != nil {
		for key, value := range resp.LearnedContext {
			if facts[key] == value {
				continue
			}
			if err := b.db.SetFact(m.Author.ID, key, value); err != nil {
				log.Printf("saving fact %s for %s: %v", key, m.Author.ID, err)
			}
		}
	}

	// Retain only the visible exchange, bounded by the same pruning policy
	// the agent applies, so per-channel memory cannot grow without limit.
	history = append(history,
		llm.Message{Role: llm.RoleUser, Content: content},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
	)
	history = llm.PruneHistory(history)

	historiesMu.Lock()
	histories[m.ChannelID] = history
	historiesMu.Unlock()

	// Discord has a 2000 char limit; split if needed
	for _, chunk := range splitMessage(resp.Text, 2000) {
		s.ChannelMessageSend(m.ChannelID, chunk)
	}
}

// fetchImageAttachment downloads the first image attached to the message, if
// any. Failures degrade to a photo-less turn.
func fetchImageAttachment(m *discordgo.MessageCreate) []byte {
	for _, a := range m.Attachments {
		if !strings.HasPrefix(a.ContentType, "image/") {
			continue
		}
		if a.Size > maxImageBytes {
			log.Printf("ignoring oversized attachment %s (%d bytes)", a.Filename, a.Size)
			continue
		}
		resp, err := http.Get(a.URL)
		if err != nil {
			log.Printf("downloading attachment %s: %v", a.Filename, err)
			return nil
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			log.Printf("reading attachment %s: %v", a.Filename, err)
			return nil
		}
		return data
	}
	return nil
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := maxLen
		if end > len(s) {
			end = len(s)
		}
		// Try to split at a newline
		if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
			end = idx + 1
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
