package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogMode     string
	Location    *time.Location

	// Telegram. The bot and the reminder are disabled when BotToken is empty.
	BotToken       string
	ReminderChatID int64
	ReminderCron   string

	// Recovery hints are only generated when an API key is present.
	OpenAIAPIKey string
	OpenAIModel  string
}

func (c Config) BotEnabled() bool {
	return c.BotToken != ""
}

func (c Config) HintsEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "loading env file")
	}

	cfg := Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		LogMode:      getEnv("LOG_MODE", "dev"),
		BotToken:     os.Getenv("BOT_TOKEN"),
		ReminderCron: getEnv("REMINDER_CRON", "0 8 * * *"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini-2024-07-18"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getEnv("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_NAME", "leetcode_practice"),
		)
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid TIMEZONE")
	}
	cfg.Location = loc

	if raw := os.Getenv("REMINDER_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid REMINDER_CHAT_ID %q", raw)
		}
		cfg.ReminderChatID = id
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
