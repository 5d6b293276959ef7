package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var allEnvKeys = []string{
	"TELEGRAM_BOT_TOKEN",
	"GOOGLE_API_KEY",
	"GEMINI_API_KEY",
	"DRIVE_ROOT_FOLDER_ID",
	"DATABASE_PATH",
	"LOG_LEVEL",
	"ADMIN_USERS",
	"CHECK_INTERVAL_MINUTES",
	"DEFAULT_TIMEZONE",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"DRIVE_ROOT_FOLDER_ID": "root"},
			wantErr: true,
		},
		{
			name:    "missing root folder",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok"},
			wantErr: true,
		},
		{
			name: "required only, defaults applied",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"DRIVE_ROOT_FOLDER_ID": "root",
			},
			want: &Config{
				TelegramBotToken:     "tok",
				DriveRootFolderID:    "root",
				DatabasePath:         "./data/bot.db",
				LogLevel:             "info",
				CheckIntervalMinutes: 30,
				DefaultTimezone:      "Asia/Tashkent",
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"DRIVE_ROOT_FOLDER_ID":   "root",
				"GOOGLE_API_KEY":         "gk",
				"GEMINI_API_KEY":         "ai",
				"DATABASE_PATH":          "/tmp/bot.db",
				"LOG_LEVEL":              "debug",
				"ADMIN_USERS":            "111,222",
				"CHECK_INTERVAL_MINUTES": "15",
				"DEFAULT_TIMEZONE":       "Europe/Berlin",
			},
			want: &Config{
				TelegramBotToken:     "tok",
				DriveRootFolderID:    "root",
				GoogleAPIKey:         "gk",
				GeminiAPIKey:         "ai",
				DatabasePath:         "/tmp/bot.db",
				LogLevel:             "debug",
				AdminUsers:           []int64{111, 222},
				CheckIntervalMinutes: 15,
				DefaultTimezone:      "Europe/Berlin",
			},
		},
		{
			name: "admin list with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"DRIVE_ROOT_FOLDER_ID": "root",
				"ADMIN_USERS":          " 10 , 20 , ",
			},
			want: &Config{
				TelegramBotToken:     "tok",
				DriveRootFolderID:    "root",
				DatabasePath:         "./data/bot.db",
				LogLevel:             "info",
				AdminUsers:           []int64{10, 20},
				CheckIntervalMinutes: 30,
				DefaultTimezone:      "Asia/Tashkent",
			},
		},
		{
			name: "invalid admin id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"DRIVE_ROOT_FOLDER_ID": "root",
				"ADMIN_USERS":          "123,abc",
			},
			wantErr: true,
		},
		{
			name: "interval out of range",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"DRIVE_ROOT_FOLDER_ID":   "root",
				"CHECK_INTERVAL_MINUTES": "0",
			},
			wantErr: true,
		},
		{
			name: "interval not a number",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":     "tok",
				"DRIVE_ROOT_FOLDER_ID":   "root",
				"CHECK_INTERVAL_MINUTES": "often",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range allEnvKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admins []int64
		userID int64
		want   bool
	}{
		{name: "empty list denies", admins: nil, userID: 42, want: false},
		{name: "admin in list", admins: []int64{10, 20}, userID: 20, want: true},
		{name: "not in list", admins: []int64{10, 20}, userID: 99, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{AdminUsers: tt.admins}
			if got := c.IsAdmin(tt.userID); got != tt.want {
				t.Errorf("IsAdmin(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}
