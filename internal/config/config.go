package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken         string
	DiscordApplicationID string

	// Riot API
	RiotAPIKey string

	// Database
	DatabasePath string

	// Polling
	PollSchedule      string // cron spec for the cycle cadence
	BatchCeiling      int    // max accounts checked per cycle
	MatchHistoryCount int    // recent match IDs fetched per account
	MatchCapPerCycle  int    // max distinct matches processed per cycle, 0 = unlimited

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:         os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordApplicationID: os.Getenv("DISCORD_APPLICATION_ID"),
		RiotAPIKey:           os.Getenv("RIOT_API_KEY"),
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		PollSchedule:         getEnvOrDefault("POLL_SCHEDULE", "@every 1m"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.BatchCeiling, err = getEnvInt("BATCH_CEILING", 25); err != nil {
		return nil, err
	}
	if cfg.MatchHistoryCount, err = getEnvInt("MATCH_HISTORY_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.MatchCapPerCycle, err = getEnvInt("MATCH_CAP_PER_CYCLE", 50); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.BatchCeiling <= 0 {
		return nil, fmt.Errorf("BATCH_CEILING must be positive")
	}
	if cfg.MatchHistoryCount <= 0 {
		return nil, fmt.Errorf("MATCH_HISTORY_COUNT must be positive")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
