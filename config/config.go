package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIKey     string
	LLMModel      string // chat model driving the turn
	VisionModel   string // model used for photo analysis
	SearchAPIKey  string
	SearchBaseURL string
	DiscordToken  string
	DatabasePath  string
	LearnContext  bool // extract learned user facts as a turn side-step
	FactTTLDays   int  // learned facts older than this are pruned
}

func Load() *Config {
	_ = godotenv.Load() // ignore error if no .env

	return &Config{
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		LLMModel:      envOr("LLM_MODEL", "gpt-4o"),
		VisionModel:   envOr("VISION_MODEL", "gpt-4o"),
		SearchAPIKey:  os.Getenv("SEARCH_API_KEY"),
		SearchBaseURL: envOr("SEARCH_BASE_URL", "https://search.internal/v1/search"),
		DiscordToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		DatabasePath:  envOr("DATABASE_PATH", "./lens.db"),
		LearnContext:  envBool("LEARN_CONTEXT", false),
		FactTTLDays:   envInt("FACT_TTL_DAYS", 90),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
