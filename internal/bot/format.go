package bot

import (
	"fmt"
	"strings"

	"schedule_bot/internal/drive"
	"schedule_bot/internal/model"
)

const welcomeText = `👋 Welcome to the Schedule Bot!

I watch the university's schedule folder and send your group's
schedule here the moment it changes. I can also pin a daily summary
and remind you before each class.

Quick start:
1. /setup — pick your education type, course, and group
2. /schedule — get the current schedule file
3. /notifications — turn on class reminders

Use /help for the full command reference.`

const helpText = `Subscription:
/setup — subscribe to a group's schedule
/myinfo — show your subscription
/format photo|document — how files arrive
/unsubscribe — remove the subscription
/cancel — abort the setup wizard

Schedule:
/schedule — fetch the current schedule file
/week — full recognized week
/today — today's classes

Reminders:
/notifications — toggle pre-class reminders
/lead <minutes> — how early reminders arrive (1-120)

/chatid — show this chat's ID`

// FormatFileCaption is the caption attached to an on-demand schedule
// file delivery.
func FormatFileCaption(group string, info *drive.FileInfo) string {
	return fmt.Sprintf("📅 Schedule for *%s*\n🕒 Modified: %s\n📦 Size: %s", group, info.ModifiedTime, info.Size)
}

// FormatMyInfo renders the /myinfo summary.
func FormatMyInfo(r *model.Recipient, ns *model.NotificationSettings) string {
	var b strings.Builder
	b.WriteString("ℹ️ *Your subscription*\n\n")

	eduName := r.EducationType
	if edu, ok := drive.EducationByKey(r.EducationType); ok {
		eduName = edu.Name
	}
	fmt.Fprintf(&b, "🎓 %s, course %s\n", eduName, r.Course)
	fmt.Fprintf(&b, "👥 Group: *%s*\n", r.Group)
	fmt.Fprintf(&b, "📦 Delivery: %s\n", r.Format)

	if ns == nil {
		b.WriteString("🔕 Reminders: not configured")
		return b.String()
	}
	if ns.Enabled {
		fmt.Fprintf(&b, "🔔 Reminders: on, %d min before class\n", ns.LeadMinutes)
	} else {
		b.WriteString("🔕 Reminders: off\n")
	}
	fmt.Fprintf(&b, "🌍 Timezone: %s", ns.Timezone)
	return b.String()
}

// FormatStats renders the admin /stats view.
func FormatStats(s *model.Stats) string {
	var b strings.Builder
	b.WriteString("📊 *Bot statistics*\n\n")
	fmt.Fprintf(&b, "👤 Users: %d\n", s.Users)
	fmt.Fprintf(&b, "👥 Group chats: %d\n", s.Chats)
	fmt.Fprintf(&b, "📚 Recognized schedules: %d\n", s.Schedules)
	fmt.Fprintf(&b, "📄 Tracked files: %d\n", s.Tracked)
	fmt.Fprintf(&b, "⚠️ Failing files: %d", s.Failing)
	return b.String()
}
