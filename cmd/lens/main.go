package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chris/lens/config"
	"github.com/chris/lens/internal/agent"
	"github.com/chris/lens/internal/db"
	"github.com/chris/lens/internal/discord"
	"github.com/chris/lens/internal/llm"
	"github.com/chris/lens/internal/search"
	"github.com/chris/lens/internal/vision"
)

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	client := llm.NewOpenAIClient(cfg.OpenAIKey, cfg.LLMModel)
	searchClient := search.New(cfg.SearchBaseURL, cfg.SearchAPIKey)
	visionClient := vision.New(cfg.OpenAIKey, cfg.VisionModel)

	ag := agent.New(client, searchClient, visionClient, client.Model(), cfg.LearnContext)

	// If Discord token is set, run as bot
	if cfg.DiscordToken != "" {
		runBot(cfg, database, ag)
		return
	}

	// Otherwise, CLI mode
	runCLI(ag, database)
}

func runCLI(ag *agent.Agent, database *db.DB) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if !isPipe {
		fmt.Print("lens> ")
	}

	var history []llm.Message
	var image []byte

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			if !isPipe {
				fmt.Print("lens> ")
			}
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		// "/photo <path>" stages a frame for the next message, standing in
		// for the camera feed the glasses would send.
		if path, ok := strings.CutPrefix(input, "/photo "); ok {
			data, err := os.ReadFile(strings.TrimSpace(path))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			} else {
				image = data
				fmt.Printf("photo staged (%d bytes)\n", len(image))
			}
			if !isPipe {
				fmt.Print("lens> ")
			}
			continue
		}

		facts, err := database.GetFacts("cli")
		if err != nil {
			log.Printf("loading facts: %v", err)
		}

		resp, err := ag.Assist(ctx, agent.Request{
			Prompt:         input,
			Image:          image,
			History:        history,
			LocalTime:      time.Now().Format("Monday, January 2, 2006, 3:04 PM"),
			LearnedContext: facts,
		})
		image = nil
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			fmt.Println(resp.Text)
			for key, value := range resp.LearnedContext {
				if facts[key] != value {
					if err := database.SetFact("cli", key, value); err != nil {
						log.Printf("saving fact %s: %v", key, err)
					}
				}
			}
			history = append(history,
				llm.Message{Role: llm.RoleUser, Content: input},
				llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
			)
			history = llm.PruneHistory(history)
		}

		if isPipe {
			break // single exchange in pipe mode
		}
		fmt.Print("lens> ")
	}
}

func runBot(cfg *config.Config, database *db.DB, ag *agent.Agent) {
	bot, err := discord.NewBot(cfg.DiscordToken, ag, database)
	if err != nil {
		log.Fatalf("failed to start Discord bot: %v", err)
	}
	defer bot.Close()

	// Stale learned facts age out daily.
	c := cron.New()
	c.AddFunc("0 4 * * *", func() {
		n, err := database.PruneFacts(cfg.FactTTLDays)
		if err != nil {
			log.Printf("pruning facts: %v", err)
			return
		}
		if n > 0 {
			log.Printf("pruned %d stale facts", n)
		}
	})
	c.Start()
	defer c.Stop()

	log.Println("bot is running. Press Ctrl+C to exit.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down.")
}
