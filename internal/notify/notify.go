// Package notify drives the per-recipient pinned daily summary and the
// timed pre-class alerts.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"schedule_bot/internal/schedule"
	"schedule_bot/internal/storage"
)

// Day-window boundaries, in the recipient's local time.
const (
	summaryPostHour  = 7  // earliest hour the daily summary may appear
	summaryLastHour  = 21 // latest hour the summary is posted or edited
	summaryResetHour = 22 // from this hour the summary cycle is reset
)

// alertCleanupDelay is how long an alert outlives its class start.
const alertCleanupDelay = 5 * time.Minute

// Messenger is the Telegram surface the notifier needs.
type Messenger interface {
	SendMessage(chatID int64, text string) (int, error)
	SendSilent(chatID int64, text string) (int, error)
	EditMessage(chatID int64, messageID int, text string) error
	PinMessage(chatID int64, messageID int) error
}

// Notifier walks all notifiable recipients once a minute and keeps
// their daily summaries and pre-class alerts current.
type Notifier struct {
	store     storage.Storage
	msgr      Messenger
	deletions *DeletionQueue
	log       *slog.Logger
	now       func() time.Time
	defaultTZ string
	tick      time.Duration
}

// New creates a Notifier. defaultTZ is used when a recipient's stored
// timezone does not load.
func New(store storage.Storage, msgr Messenger, deletions *DeletionQueue, defaultTZ string, log *slog.Logger) *Notifier {
	return &Notifier{
		store:     store,
		msgr:      msgr,
		deletions: deletions,
		log:       log,
		now:       time.Now,
		defaultTZ: defaultTZ,
		tick:      time.Minute,
	}
}

// SetClock overrides the time source (useful for testing).
func (n *Notifier) SetClock(now func() time.Time) {
	n.now = now
}

// Run starts the notification loop, blocking until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Tick(ctx)
		}
	}
}

// Tick processes every notifiable recipient once. One recipient's
// failure never blocks the others.
func (n *Notifier) Tick(ctx context.Context) {
	recipients, err := n.store.ListNotifiable(ctx)
	if err != nil {
		n.log.Error("list notifiable recipients", "error", err)
		return
	}

	for _, nr := range recipients {
		if ctx.Err() != nil {
			return
		}

		raw, err := n.store.GetSchedule(ctx, nr.Group)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			n.log.Error("load schedule", "group", nr.Group, "error", err)
			continue
		}
		week, err := schedule.Parse([]byte(raw))
		if err != nil {
			n.log.Error("parse stored schedule", "group", nr.Group, "error", err)
			continue
		}

		localNow := n.now().In(n.location(nr.Timezone))
		n.handleDaily(ctx, nr.ChatID, nr.Group, nr.DailyMessageID, week, localNow)
		n.handleAlerts(ctx, nr.ChatID, nr.Group, nr.LeadMinutes, week, localNow)
	}
}

func (n *Notifier) location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err == nil {
		return loc
	}
	loc, err = time.LoadLocation(n.defaultTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// handleDaily drives the pinned summary lifecycle for one recipient.
func (n *Notifier) handleDaily(ctx context.Context, chatID int64, group string, messageID *int, week schedule.Week, localNow time.Time) {
	hour := localNow.Hour()

	if hour >= summaryResetHour {
		// End of day: forget the message so tomorrow starts fresh.
		if messageID != nil {
			if err := n.store.SaveDailyMessageID(ctx, chatID, nil); err != nil {
				n.log.Error("reset daily message", "chat_id", chatID, "error", err)
			}
		}
		return
	}
	if hour < summaryPostHour {
		return
	}

	if messageID == nil {
		if hour > summaryLastHour {
			return
		}
		n.postDaily(ctx, chatID, group, week, localNow)
		return
	}

	n.editDaily(ctx, chatID, group, *messageID, week, localNow)
}

// postDaily sends the summary silently, pins it, and stores the
// message ID for the day's edits.
func (n *Notifier) postDaily(ctx context.Context, chatID int64, group string, week schedule.Week, localNow time.Time) {
	text := schedule.FormatDaily(week, group, localNow)
	msgID, err := n.msgr.SendSilent(chatID, text)
	if err != nil {
		n.log.Error("post daily summary", "chat_id", chatID, "error", err)
		return
	}
	if err := n.msgr.PinMessage(chatID, msgID); err != nil {
		n.log.Warn("pin daily summary", "chat_id", chatID, "error", err)
	}
	if err := n.store.SaveDailyMessageID(ctx, chatID, &msgID); err != nil {
		n.log.Error("save daily message id", "chat_id", chatID, "error", err)
	}
	n.log.Info("daily summary posted", "chat_id", chatID, "group", group)
}

// editDaily refreshes the pinned summary. Edits are rationed: every
// five minutes, and every minute in the countdown window right before
// a class.
func (n *Notifier) editDaily(ctx context.Context, chatID int64, group string, messageID int, week schedule.Week, localNow time.Time) {
	hour := localNow.Hour()
	if hour < summaryPostHour+1 || hour > summaryLastHour {
		return
	}

	next, hasNext := schedule.Next(week, localNow)
	if localNow.Minute()%5 != 0 && !(hasNext && next.MinutesUntil < 15) {
		return
	}

	text := schedule.FormatDaily(week, group, localNow)
	err := n.msgr.EditMessage(chatID, messageID, text)
	if err == nil {
		return
	}
	if strings.Contains(err.Error(), "message to edit not found") {
		// The user deleted the pinned message; repost on the next tick.
		if err := n.store.SaveDailyMessageID(ctx, chatID, nil); err != nil {
			n.log.Error("clear daily message id", "chat_id", chatID, "error", err)
		}
		return
	}
	// "message is not modified" happens between schedule changes and
	// is not worth logging above debug.
	n.log.Debug("edit daily summary", "chat_id", chatID, "error", err)
}

// handleAlerts sends the loud pre-class reminder when a class enters
// the recipient's lead window.
func (n *Notifier) handleAlerts(ctx context.Context, chatID int64, group string, leadMinutes int, week schedule.Week, localNow time.Time) {
	next, ok := schedule.Next(week, localNow)
	if !ok {
		return
	}
	if next.MinutesUntil < leadMinutes || next.MinutesUntil > leadMinutes+1 {
		return
	}

	date := localNow.Format("2006-01-02")
	sent, err := n.store.WasAlertSent(ctx, chatID, next.TimeStart, date)
	if err != nil {
		n.log.Error("check alert sent", "chat_id", chatID, "error", err)
		return
	}
	if sent {
		return
	}

	msgID, err := n.msgr.SendMessage(chatID, schedule.FormatAlert(next, group))
	if err != nil {
		n.log.Error("send alert", "chat_id", chatID, "error", err)
		return
	}
	if err := n.store.MarkAlertSent(ctx, chatID, next.TimeStart, date); err != nil {
		n.log.Error("mark alert sent", "chat_id", chatID, "error", err)
	}

	cleanupAt := localNow.Add(time.Duration(next.MinutesUntil)*time.Minute + alertCleanupDelay)
	n.deletions.Enqueue(chatID, msgID, cleanupAt)
	n.log.Info("alert sent", "chat_id", chatID, "group", group, "class", next.TimeStart)
}

// RunRetention prunes old alert and action-log rows once a day.
func RunRetention(ctx context.Context, store storage.Storage, log *slog.Logger) {
	const (
		alertRetention = 7 * 24 * time.Hour
		logRetention   = 30 * 24 * time.Hour
	)

	prune := func() {
		if n, err := store.CleanupSentAlerts(ctx, alertRetention); err != nil {
			log.Error("cleanup sent alerts", "error", err)
		} else if n > 0 {
			log.Info("pruned sent alerts", "rows", n)
		}
		if n, err := store.CleanupActionLogs(ctx, logRetention); err != nil {
			log.Error("cleanup action logs", "error", err)
		} else if n > 0 {
			log.Info("pruned action logs", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
