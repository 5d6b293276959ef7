package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"schedule_bot/internal/model"
	"schedule_bot/internal/monitor"
	"schedule_bot/internal/schedule"
	"schedule_bot/internal/storage"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case "setup":
		b.startSetup(chatID, recipientKind(msg.Chat))
	case "cancel":
		b.handleCancel(chatID)
	case "schedule":
		b.handleSchedule(ctx, chatID)
	case "week":
		b.handleWeek(ctx, chatID)
	case "today":
		b.handleToday(ctx, chatID)
	case "notifications":
		b.handleNotifications(ctx, chatID)
	case "lead":
		b.handleLead(ctx, chatID, args)
	case "format":
		b.handleFormat(ctx, chatID, args)
	case "myinfo":
		b.handleMyInfo(ctx, chatID)
	case "chatid":
		b.reply(chatID, fmt.Sprintf("Chat ID: `%d`\nYour ID: `%d`", chatID, userID))
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID)
	case "stats":
		b.adminOnly(ctx, chatID, userID, func() { b.handleStats(ctx, chatID) })
	case "forcecheck":
		b.adminOnly(ctx, chatID, userID, func() { b.handleForceCheck(ctx, chatID) })
	case "clearcache":
		b.adminOnly(ctx, chatID, userID, func() { b.handleClearCache(chatID) })
	case "broadcast":
		b.adminOnly(ctx, chatID, userID, func() { b.handleBroadcast(ctx, chatID, args) })
	case "interval":
		b.adminOnly(ctx, chatID, userID, func() { b.handleInterval(ctx, chatID, args) })
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func recipientKind(chat *tgbotapi.Chat) model.RecipientKind {
	if chat.IsPrivate() {
		return model.KindUser
	}
	return model.KindChat
}

func (b *Bot) adminOnly(ctx context.Context, chatID, userID int64, fn func()) {
	if !b.isAdmin(ctx, userID) {
		b.reply(chatID, "This command is for administrators.")
		return
	}
	fn()
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	if _, err := b.store.GetRecipient(ctx, chatID); err == nil {
		b.reply(chatID, "👋 You are already subscribed. Use /schedule for the current file or /help for all commands.")
		return
	}
	b.reply(chatID, welcomeText)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleCancel(chatID int64) {
	if b.cancelSetup(chatID) {
		b.reply(chatID, "Setup cancelled.")
		return
	}
	b.reply(chatID, "Nothing to cancel.")
}

// handleSchedule downloads and sends the recipient's current schedule
// file in their preferred format.
func (b *Bot) handleSchedule(ctx context.Context, chatID int64) {
	r, ok := b.recipient(ctx, chatID)
	if !ok {
		return
	}

	b.reply(chatID, "⏳ Fetching your schedule...")

	pdfPath, info, err := b.library.DownloadSchedule(ctx, r.EducationType, r.FileName(), r.Course)
	if err != nil {
		b.log.Error("download schedule", "chat_id", chatID, "group", r.Group, "error", err)
		b.reply(chatID, "😔 Could not fetch the schedule file right now. Try again later.")
		return
	}
	defer func() { _ = os.Remove(pdfPath) }()

	caption := FormatFileCaption(r.Group, info)
	if r.Format == model.FormatPhoto {
		images, err := b.converter.ToImages(pdfPath)
		if err == nil {
			defer b.converter.Cleanup(images)
			err = b.SendPhotoAlbum(chatID, images, caption)
			if err == nil {
				return
			}
		}
		b.log.Warn("photo delivery failed, sending document", "chat_id", chatID, "error", err)
	}
	if err := b.SendDocument(chatID, pdfPath, caption); err != nil {
		b.log.Error("send document", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not send the file.")
	}
}

func (b *Bot) handleWeek(ctx context.Context, chatID int64) {
	r, week, ok := b.storedWeek(ctx, chatID)
	if !ok {
		return
	}
	b.reply(chatID, schedule.FormatWeek(week, r.Group))
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) {
	r, week, ok := b.storedWeek(ctx, chatID)
	if !ok {
		return
	}
	now := time.Now().In(b.timezone(ctx, chatID))
	b.reply(chatID, schedule.FormatDay(week, schedule.DayKey(now), r.Group))
}

func (b *Bot) handleNotifications(ctx context.Context, chatID int64) {
	if _, ok := b.recipient(ctx, chatID); !ok {
		return
	}
	enabled, err := b.store.ToggleNotifications(ctx, chatID)
	if err != nil {
		b.log.Error("toggle notifications", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not update notifications.")
		return
	}
	if enabled {
		b.reply(chatID, "🔔 Class reminders are ON. Use /lead to change how early they arrive.")
		return
	}
	b.reply(chatID, "🔕 Class reminders are OFF.")
}

func (b *Bot) handleLead(ctx context.Context, chatID int64, args string) {
	if _, ok := b.recipient(ctx, chatID); !ok {
		return
	}

	ns, err := b.store.NotificationSettings(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		ns = &model.NotificationSettings{ChatID: chatID, Enabled: true, LeadMinutes: 10, Timezone: b.cfg.DefaultTimezone}
	} else if err != nil {
		b.log.Error("notification settings", "chat_id", chatID, "error", err)
		return
	}

	if args == "" {
		b.reply(chatID, fmt.Sprintf("Reminders arrive *%d min* before class.\nUse /lead <minutes> (1-120) to change.", ns.LeadMinutes))
		return
	}

	minutes, err := ParseLeadArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	ns.LeadMinutes = minutes
	if err := b.store.SetNotificationSettings(ctx, ns); err != nil {
		b.log.Error("set notification settings", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not save the setting.")
		return
	}
	b.reply(chatID, fmt.Sprintf("⏰ Reminders will now arrive %d min before class.", minutes))
}

func (b *Bot) handleFormat(ctx context.Context, chatID int64, args string) {
	r, ok := b.recipient(ctx, chatID)
	if !ok {
		return
	}

	format, err := ParseFormatArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Current format: *%s*.\nUse /format photo or /format document.", r.Format))
		return
	}
	if err := b.store.SetFormat(ctx, chatID, format); err != nil {
		b.log.Error("set format", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not save the setting.")
		return
	}
	b.reply(chatID, fmt.Sprintf("📦 Schedules will arrive as *%s*.", format))
}

func (b *Bot) handleMyInfo(ctx context.Context, chatID int64) {
	r, ok := b.recipient(ctx, chatID)
	if !ok {
		return
	}
	ns, err := b.store.NotificationSettings(ctx, chatID)
	if err != nil {
		ns = nil
	}
	b.reply(chatID, FormatMyInfo(r, ns))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	if _, ok := b.recipient(ctx, chatID); !ok {
		return
	}
	if err := b.store.DeleteRecipient(ctx, chatID); err != nil {
		b.log.Error("delete recipient", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not unsubscribe.")
		return
	}
	b.reply(chatID, "👋 Unsubscribed. Use /setup to subscribe again.")
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.store.Stats(ctx, monitor.FailThreshold)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(stats))
}

func (b *Bot) handleForceCheck(ctx context.Context, chatID int64) {
	if b.checker == nil {
		b.reply(chatID, "The file monitor is not running.")
		return
	}
	b.reply(chatID, "🔎 Checking all tracked files...")
	go b.checker.Sweep(ctx)
}

func (b *Bot) handleClearCache(chatID int64) {
	folders := b.library.ClearCache()
	groups := b.searcher.ClearCache()
	b.reply(chatID, fmt.Sprintf("🧹 Cleared %d folder listings and %d group lists.", folders, groups))
}

func (b *Bot) handleBroadcast(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /broadcast <message>")
		return
	}
	recipients, err := b.store.ListRecipients(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	sent := 0
	for i, r := range recipients {
		if i > 0 {
			time.Sleep(50 * time.Millisecond)
		}
		if _, err := b.SendMessage(r.ChatID, "📢 "+args); err != nil {
			b.log.Warn("broadcast", "chat_id", r.ChatID, "error", err)
			continue
		}
		sent++
	}
	b.reply(chatID, fmt.Sprintf("📢 Broadcast delivered to %d of %d recipients.", sent, len(recipients)))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	minutes, err := ParseIntervalArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.store.SetSetting(ctx, "check_interval", fmt.Sprintf("%d", minutes)); err != nil {
		b.log.Error("save interval", "error", err)
	}
	if b.checker != nil {
		b.checker.SetInterval(time.Duration(minutes) * time.Minute)
	}
	b.reply(chatID, fmt.Sprintf("⏱ Check interval set to %d minutes.", minutes))
}

// recipient loads the chat's subscription, nudging toward /setup when
// there is none.
func (b *Bot) recipient(ctx context.Context, chatID int64) (*model.Recipient, bool) {
	r, err := b.store.GetRecipient(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "You are not subscribed yet. Use /setup to pick your group.")
		return nil, false
	}
	if err != nil {
		b.log.Error("get recipient", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Something went wrong, try again.")
		return nil, false
	}
	return r, true
}

// storedWeek loads the recipient's structured schedule.
func (b *Bot) storedWeek(ctx context.Context, chatID int64) (*model.Recipient, schedule.Week, bool) {
	r, ok := b.recipient(ctx, chatID)
	if !ok {
		return nil, nil, false
	}
	raw, err := b.store.GetSchedule(ctx, r.Group)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "📭 No recognized schedule for your group yet. It appears after the next schedule update; meanwhile /schedule sends the file itself.")
		return nil, nil, false
	}
	if err != nil {
		b.log.Error("get schedule", "group", r.Group, "error", err)
		b.reply(chatID, "😔 Something went wrong, try again.")
		return nil, nil, false
	}
	week, err := schedule.Parse([]byte(raw))
	if err != nil {
		b.log.Error("parse stored schedule", "group", r.Group, "error", err)
		b.reply(chatID, "😔 The stored schedule looks broken; it will be refreshed on the next update.")
		return nil, nil, false
	}
	return r, week, true
}

// timezone resolves the chat's notification timezone, falling back to
// the configured default.
func (b *Bot) timezone(ctx context.Context, chatID int64) *time.Location {
	tz := b.cfg.DefaultTimezone
	if ns, err := b.store.NotificationSettings(ctx, chatID); err == nil {
		tz = ns.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
