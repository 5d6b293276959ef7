package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Request(ack); err != nil {
		b.log.Debug("callback ack", "error", err)
	}

	action, arg, _ := strings.Cut(cb.Data, ":")

	b.log.Debug("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
	)

	switch action {
	case "edu":
		b.chooseEducation(chatID, arg)
	case "course":
		b.chooseCourse(ctx, chatID, arg)
	case "dir":
		b.chooseDirection(ctx, chatID, arg)
	case "page":
		page, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		b.turnGroupPage(ctx, chatID, page)
	case "grp":
		b.chooseGroup(ctx, chatID, arg)
	case "noop":
	}
}
