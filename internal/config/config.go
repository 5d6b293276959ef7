// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken     string
	GoogleAPIKey         string
	GeminiAPIKey         string
	DriveRootFolderID    string
	DatabasePath         string
	LogLevel             string
	AdminUsers           []int64
	CheckIntervalMinutes int
	DefaultTimezone      string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rootFolder := os.Getenv("DRIVE_ROOT_FOLDER_ID")
	if rootFolder == "" {
		return nil, fmt.Errorf("DRIVE_ROOT_FOLDER_ID is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	tz := os.Getenv("DEFAULT_TIMEZONE")
	if tz == "" {
		tz = "Asia/Tashkent"
	}

	interval := 30
	if raw := os.Getenv("CHECK_INTERVAL_MINUTES"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1440 {
			return nil, fmt.Errorf("CHECK_INTERVAL_MINUTES must be between 1 and 1440, got %q", raw)
		}
		interval = v
	}

	var admins []int64
	if raw := os.Getenv("ADMIN_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ADMIN_USERS: %w", s, err)
			}
			admins = append(admins, uid)
		}
	}

	return &Config{
		TelegramBotToken:     token,
		GoogleAPIKey:         os.Getenv("GOOGLE_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		DriveRootFolderID:    rootFolder,
		DatabasePath:         dbPath,
		LogLevel:             logLevel,
		AdminUsers:           admins,
		CheckIntervalMinutes: interval,
		DefaultTimezone:      tz,
	}, nil
}

// IsAdmin checks whether a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}
