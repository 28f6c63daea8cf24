package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	SurrealURL  string
	SurrealNS   string
	SurrealDB   string
	SurrealUser string
	SurrealPass string

	GitHubToken string
	StarListID  string

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMTimeoutSeconds int

	// Batch classification settings. Bounds are enforced by batch.Config.
	BatchConcurrency       int
	BatchRequestIntervalMS int
	AutoApplyMinConfidence float64

	// ListLocale selects the language canonical list names are created in.
	ListLocale string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		SurrealURL:  os.Getenv("SURREAL_URL"),
		SurrealNS:   os.Getenv("SURREAL_NS"),
		SurrealDB:   os.Getenv("SURREAL_DB"),
		SurrealUser: os.Getenv("SURREAL_USER"),
		SurrealPass: os.Getenv("SURREAL_PASS"),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		StarListID:  os.Getenv("STAR_LIST_ID"),

		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		LLMTimeoutSeconds: envInt("LLM_TIMEOUT_SECONDS", 60),

		BatchConcurrency:       envInt("BATCH_CONCURRENCY", 3),
		BatchRequestIntervalMS: envInt("BATCH_REQUEST_INTERVAL_MS", 1000),
		AutoApplyMinConfidence: envFloat("AUTO_APPLY_MIN_CONFIDENCE", 0),

		ListLocale: strings.ToLower(strings.TrimSpace(os.Getenv("LIST_LOCALE"))),
	}

	// The SDK appends /rpc automatically
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/rpc")
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/")

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}
	if cfg.ListLocale == "" {
		cfg.ListLocale = "en"
	}

	return cfg
}

// envInt returns def when the variable is unset or not an integer.
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
