package schedule

import (
	"fmt"
	"strings"
	"time"
)

// FormatDaily renders the pinned full-day view: past entries marked
// done, the nearest upcoming entry highlighted with a countdown, the
// rest plain.
func FormatDaily(w Week, group string, now time.Time) string {
	entries := w[DayKey(now)]

	var b strings.Builder
	fmt.Fprintf(&b, "📅 *%s schedule*\n", DayName(DayKey(now)))
	fmt.Fprintf(&b, "📆 %s\n", now.Format("02.01.2006"))
	fmt.Fprintf(&b, "👥 Group: *%s*\n\n", group)

	if len(entries) == 0 {
		b.WriteString("🎉 No classes today!")
		return b.String()
	}

	nextIdx := -1
	nowMinutes := now.Hour()*60 + now.Minute()
	for i, e := range entries {
		start, err := ParseClock(e.TimeStart)
		if err == nil && start > nowMinutes {
			nextIdx = i
			break
		}
	}

	for i, e := range entries {
		start, _ := ParseClock(e.TimeStart)
		span := e.TimeStart + "-" + e.TimeEnd

		switch {
		case i == nextIdx:
			until := start - nowMinutes - boundaryAdjust(now)
			fmt.Fprintf(&b, "🔔 *%s* (in %d min)\n📚 *%s*\n", span, until, e.Subject)
			if e.Room != "" {
				fmt.Fprintf(&b, "🚪 %s\n", e.Room)
			}
		case start <= nowMinutes:
			fmt.Fprintf(&b, "✅ %s\n%s\n", span, e.Subject)
		default:
			fmt.Fprintf(&b, "%s\n📖 %s\n", span, e.Subject)
			if e.Room != "" {
				fmt.Fprintf(&b, "🚪 %s\n", e.Room)
			}
		}
		b.WriteString("\n")
	}

	if nextIdx >= 0 {
		b.WriteString("💡 _This message updates automatically_")
	} else {
		b.WriteString("✅ _All classes for today are done!_")
	}
	return b.String()
}

// FormatAlert renders the short pre-class push message. The first two
// lines are what shows up in the platform's push preview.
func FormatAlert(next NextClass, group string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *%s*\n", next.Subject)
	if next.Room != "" {
		fmt.Fprintf(&b, "🚪 %s • ", next.Room)
	}
	fmt.Fprintf(&b, "⏰ %s (in %d min)\n\n", next.TimeStart, next.MinutesUntil)
	fmt.Fprintf(&b, "👥 Group: %s\n", group)
	fmt.Fprintf(&b, "⏱ %s-%s\n\n", next.TimeStart, next.TimeEnd)
	b.WriteString("💨 Don't be late!")
	return b.String()
}

// FormatWeek renders the full stored week, skipping empty days.
func FormatWeek(w Week, group string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 *Week schedule for %s*\n", group)

	any := false
	for _, day := range DayKeys {
		entries := w[day]
		if len(entries) == 0 {
			continue
		}
		any = true
		fmt.Fprintf(&b, "\n*%s*:\n", DayName(day))
		for _, e := range entries {
			fmt.Fprintf(&b, "  • %s-%s — %s", e.TimeStart, e.TimeEnd, e.Subject)
			if e.Room != "" {
				fmt.Fprintf(&b, " (%s)", e.Room)
			}
			b.WriteString("\n")
		}
	}
	if !any {
		b.WriteString("\nNo classes recorded.")
	}
	return b.String()
}

// FormatDay renders a single weekday.
func FormatDay(w Week, day, group string) string {
	entries := w[day]
	if len(entries) == 0 {
		return fmt.Sprintf("%s: no classes 🎉", DayName(day))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 *%s* — %s:\n\n", DayName(day), group)
	for _, e := range entries {
		fmt.Fprintf(&b, "🕐 %s-%s\n📚 %s", e.TimeStart, e.TimeEnd, e.Subject)
		if e.Room != "" {
			fmt.Fprintf(&b, " (room %s)", e.Room)
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
