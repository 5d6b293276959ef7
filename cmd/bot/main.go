package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"schedule_bot/internal/bot"
	"schedule_bot/internal/config"
	"schedule_bot/internal/convert"
	"schedule_bot/internal/drive"
	"schedule_bot/internal/extractor"
	"schedule_bot/internal/match"
	"schedule_bot/internal/monitor"
	"schedule_bot/internal/notify"
	"schedule_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	driveClient := drive.NewClient(cfg.GoogleAPIKey, log)
	locator := drive.NewLocator(driveClient, cfg.DriveRootFolderID, log)
	searcher := match.NewSearcher(locator)
	converter := convert.NewPdftoppm("temp_images")

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, locator, searcher, converter, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	gemini := extractor.NewGemini(cfg.GeminiAPIKey, log)

	interval := checkInterval(store, cfg, log)
	mon := monitor.New(store, locator, b, converter, gemini, cfg.AdminUsers, interval, log)
	b.SetChecker(mon)

	deletions := notify.NewDeletionQueue(b, log)
	notifier := notify.New(store, b, deletions, cfg.DefaultTimezone, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "check_interval", interval)

	go mon.Run(ctx)
	go notifier.Run(ctx)
	go deletions.Run(ctx)
	go notify.RunRetention(ctx, store, log)

	b.Run(ctx)

	log.Info("bot stopped")
}

// checkInterval prefers the interval an admin set at runtime over the
// configured default.
func checkInterval(store storage.Storage, cfg *config.Config, log *slog.Logger) time.Duration {
	minutes := cfg.CheckIntervalMinutes
	if raw, err := store.GetSetting(context.Background(), "check_interval"); err == nil && raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1440 {
			log.Warn("ignoring stored check_interval", "value", raw)
		} else {
			minutes = v
		}
	}
	return time.Duration(minutes) * time.Minute
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
