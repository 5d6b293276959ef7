package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"schedule_bot/internal/config"
	"schedule_bot/internal/convert"
	"schedule_bot/internal/drive"
	"schedule_bot/internal/match"
	"schedule_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Library resolves and downloads schedule files on demand.
type Library interface {
	DownloadSchedule(ctx context.Context, educationType, fileName, course string) (string, *drive.FileInfo, error)
	ClearCache() int
}

// Checker lets admin commands drive the file monitor.
type Checker interface {
	Sweep(ctx context.Context)
	SetInterval(d time.Duration)
}

// Bot is the Telegram bot that handles user commands and delivers
// schedules.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	library   Library
	searcher  *match.Searcher
	converter convert.Converter
	checker   Checker
	log       *slog.Logger

	mu     sync.Mutex
	setups map[int64]*setupState
}

// New creates a Bot with the given Telegram token.
func New(token string, store storage.Storage, cfg *config.Config, library Library, searcher *match.Searcher, converter convert.Converter, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, cfg, library, searcher, converter, log), nil
}

func newBot(api telegramAPI, store storage.Storage, cfg *config.Config, library Library, searcher *match.Searcher, converter convert.Converter, log *slog.Logger) *Bot {
	return &Bot{
		api:       api,
		store:     store,
		cfg:       cfg,
		library:   library,
		searcher:  searcher,
		converter: converter,
		log:       log,
		setups:    make(map[int64]*setupState),
	}
}

// SetChecker wires in the file monitor after construction; the monitor
// itself sends through the bot, so neither can be built first.
func (b *Bot) SetChecker(c Checker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			if update.Message.IsCommand() {
				b.handleCommand(ctx, update.Message)
				continue
			}
			// Plain text only matters mid-setup, as a group query.
			if update.Message.Text != "" {
				b.handleGroupQuery(ctx, update.Message.Chat.ID, update.Message.Text)
			}
		}
	}
}

// SendMessage sends a markdown message and returns its message ID.
func (b *Bot) SendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// SendSilent sends a markdown message without a push notification.
func (b *Bot) SendSilent(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableNotification = true
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send silent message: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (b *Bot) EditMessage(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// PinMessage pins a message without notifying the chat.
func (b *Bot) PinMessage(chatID int64, messageID int) error {
	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           messageID,
		DisableNotification: true,
	}
	if _, err := b.api.Request(pin); err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	return nil
}

// DeleteMessage removes a previously sent message.
func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendPhotoAlbum sends schedule page images as one message, with the
// caption on the first photo.
func (b *Bot) SendPhotoAlbum(chatID int64, imagePaths []string, caption string) error {
	if len(imagePaths) == 0 {
		return fmt.Errorf("no images to send")
	}

	if len(imagePaths) == 1 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(imagePaths[0]))
		photo.Caption = caption
		if _, err := b.api.Send(photo); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	}

	media := make([]interface{}, 0, len(imagePaths))
	for i, path := range imagePaths {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(path))
		if i == 0 {
			photo.Caption = caption
		}
		media = append(media, photo)
	}
	if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return fmt.Errorf("send media group: %w", err)
	}
	return nil
}

// SendDocument sends the schedule file itself.
func (b *Bot) SendDocument(chatID int64, filePath, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = caption
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.SendMessage(chatID, text); err != nil {
		b.log.Error("reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("reply with keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}
	ok, err := b.store.IsAdmin(ctx, userID)
	if err != nil {
		b.log.Error("check admin", "user_id", userID, "error", err)
		return false
	}
	return ok
}
