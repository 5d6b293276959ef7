package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"schedule_bot/internal/drive"
	"schedule_bot/internal/match"
	"schedule_bot/internal/model"
)

// groupsPerPage keeps the group keyboard readable.
const groupsPerPage = 8

type setupStage int

const (
	stageEducation setupStage = iota
	stageCourse
	stageDirection
	stageGroup
)

// setupState tracks one chat's progress through the subscription wizard.
type setupState struct {
	Stage     setupStage
	Kind      model.RecipientKind
	Education string
	Course    string
	Direction string
	Page      int
}

func (b *Bot) setupState(chatID int64) (*setupState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.setups[chatID]
	return st, ok
}

func (b *Bot) startSetup(chatID int64, kind model.RecipientKind) {
	b.mu.Lock()
	b.setups[chatID] = &setupState{Stage: stageEducation, Kind: kind}
	b.mu.Unlock()

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, e := range drive.EducationTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(e.Name, "edu:"+e.Key),
		))
	}
	b.replyKeyboard(chatID, "🎓 Choose your education type:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) cancelSetup(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.setups[chatID]; !ok {
		return false
	}
	delete(b.setups, chatID)
	return true
}

func (b *Bot) chooseEducation(chatID int64, key string) {
	st, ok := b.setupState(chatID)
	if !ok || st.Stage != stageEducation {
		return
	}
	if _, found := drive.EducationByKey(key); !found {
		return
	}
	st.Education = key
	st.Stage = stageCourse

	var row []tgbotapi.InlineKeyboardButton
	for _, c := range drive.Courses {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c, "course:"+c))
	}
	b.replyKeyboard(chatID, "📖 Choose your course:", tgbotapi.NewInlineKeyboardMarkup(row))
}

func (b *Bot) chooseCourse(ctx context.Context, chatID int64, course string) {
	st, ok := b.setupState(chatID)
	if !ok || st.Stage != stageCourse {
		return
	}
	if !drive.ValidCourse(course) {
		return
	}
	st.Course = course
	st.Stage = stageDirection

	names, err := b.searcher.Groups(ctx, st.Education, st.Course)
	if err != nil {
		b.log.Error("list groups", "education", st.Education, "course", course, "error", err)
		b.reply(chatID, "😔 Could not load the group list right now. Try /setup again later.")
		b.cancelSetup(chatID)
		return
	}
	if len(names) == 0 {
		b.reply(chatID, "😔 No schedule files found for this course yet.")
		b.cancelSetup(chatID)
		return
	}

	grouped := match.GroupByDirection(names)
	dirs := match.Directions(grouped)
	if len(dirs) == 0 {
		// No recognizable direction prefixes; go straight to the full list.
		st.Stage = stageGroup
		b.showGroupPage(chatID, st, names)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, d := range dirs {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(d, "dir:"+d))
		if len(row) == 3 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	b.replyKeyboard(chatID, "🧭 Choose your direction, or just type your group code:",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) chooseDirection(ctx context.Context, chatID int64, dir string) {
	st, ok := b.setupState(chatID)
	if !ok || st.Stage != stageDirection {
		return
	}
	names, err := b.directionGroups(ctx, st, dir)
	if err != nil {
		b.reply(chatID, "😔 Could not load the group list right now.")
		return
	}
	if names == nil {
		return
	}
	st.Direction = dir
	st.Stage = stageGroup
	st.Page = 0
	b.showGroupPage(chatID, st, names)
}

func (b *Bot) turnGroupPage(ctx context.Context, chatID int64, page int) {
	st, ok := b.setupState(chatID)
	if !ok || st.Stage != stageGroup {
		return
	}
	names, err := b.searcher.Groups(ctx, st.Education, st.Course)
	if err != nil {
		return
	}
	if st.Direction != "" {
		names = match.GroupByDirection(names)[st.Direction]
	}
	st.Page = page
	b.showGroupPage(chatID, st, names)
}

func (b *Bot) directionGroups(ctx context.Context, st *setupState, dir string) ([]string, error) {
	names, err := b.searcher.Groups(ctx, st.Education, st.Course)
	if err != nil {
		return nil, err
	}
	return match.GroupByDirection(names)[dir], nil
}

// showGroupPage renders one page of group buttons plus paging controls.
func (b *Bot) showGroupPage(chatID int64, st *setupState, names []string) {
	pages := (len(names) + groupsPerPage - 1) / groupsPerPage
	if pages == 0 {
		b.reply(chatID, "😔 No groups found here.")
		return
	}
	if st.Page < 0 {
		st.Page = 0
	}
	if st.Page >= pages {
		st.Page = pages - 1
	}

	start := st.Page * groupsPerPage
	end := min(start+groupsPerPage, len(names))

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, name := range names[start:end] {
		code := model.GroupFromFileName(name)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(code, "grp:"+code))
		if len(row) == 2 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}

	if pages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if st.Page > 0 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("page:%d", st.Page-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", st.Page+1, pages), "noop"))
		if st.Page < pages-1 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("page:%d", st.Page+1)))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(nav...))
	}

	b.replyKeyboard(chatID, "👥 Choose your group, or type its code:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleGroupQuery resolves free-text input during the group stage of
// the wizard, with fuzzy fallback suggestions.
func (b *Bot) handleGroupQuery(ctx context.Context, chatID int64, text string) {
	st, ok := b.setupState(chatID)
	if !ok || (st.Stage != stageGroup && st.Stage != stageDirection) {
		return
	}

	result, err := b.searcher.Search(ctx, text, st.Education, st.Course)
	if err != nil {
		b.log.Error("group search", "query", text, "error", err)
		b.reply(chatID, "😔 Search failed, try again in a minute.")
		return
	}

	if result.Exact != "" {
		b.finishSetup(ctx, chatID, st, model.GroupFromFileName(result.Exact))
		return
	}
	if len(result.Candidates) == 0 {
		b.reply(chatID, fmt.Sprintf("🔍 No group looks like %q. Check the code and try again.", strings.TrimSpace(text)))
		return
	}

	candidates := result.Candidates
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range candidates {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Code, "grp:"+c.Code),
		))
	}
	b.replyKeyboard(chatID, "🤔 Did you mean one of these?", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) chooseGroup(ctx context.Context, chatID int64, code string) {
	st, ok := b.setupState(chatID)
	if !ok {
		return
	}
	b.finishSetup(ctx, chatID, st, code)
}

// finishSetup persists the subscription and default notification
// settings and closes the wizard.
func (b *Bot) finishSetup(ctx context.Context, chatID int64, st *setupState, code string) {
	r := &model.Recipient{
		ChatID:        chatID,
		Kind:          st.Kind,
		EducationType: st.Education,
		Course:        st.Course,
		Group:         code,
		Format:        model.FormatPhoto,
	}
	if err := b.store.SaveRecipient(ctx, r); err != nil {
		b.log.Error("save recipient", "chat_id", chatID, "error", err)
		b.reply(chatID, "😔 Could not save your subscription, try again.")
		return
	}

	if _, err := b.store.NotificationSettings(ctx, chatID); err != nil {
		ns := &model.NotificationSettings{
			ChatID:      chatID,
			Enabled:     true,
			LeadMinutes: 10,
			Timezone:    b.cfg.DefaultTimezone,
		}
		if err := b.store.SetNotificationSettings(ctx, ns); err != nil {
			b.log.Error("init notification settings", "chat_id", chatID, "error", err)
		}
	}

	if err := b.store.LogAction(ctx, chatID, "setup", code); err != nil {
		b.log.Debug("log action", "error", err)
	}
	b.cancelSetup(chatID)

	b.reply(chatID, fmt.Sprintf(`✅ Subscribed to *%s*!

You will get the schedule here whenever it changes.

/schedule — current schedule file
/today — today's classes
/notifications — toggle class reminders`, code))
}
