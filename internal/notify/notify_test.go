package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"schedule_bot/internal/model"
	"schedule_bot/internal/storage"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type fakeMessenger struct {
	nextID  int
	loud    []sentMsg
	silent  []sentMsg
	edits   []sentMsg
	pins    []int
	deleted []int
	editErr error
}

func (f *fakeMessenger) SendMessage(chatID int64, text string) (int, error) {
	f.nextID++
	f.loud = append(f.loud, sentMsg{ChatID: chatID, Text: text})
	return f.nextID, nil
}

func (f *fakeMessenger) SendSilent(chatID int64, text string) (int, error) {
	f.nextID++
	f.silent = append(f.silent, sentMsg{ChatID: chatID, Text: text})
	return f.nextID, nil
}

func (f *fakeMessenger) EditMessage(chatID int64, _ int, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sentMsg{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeMessenger) PinMessage(_ int64, messageID int) error {
	f.pins = append(f.pins, messageID)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

const mondaySchedule = `{"monday": [
	{"time_start": "9:00", "time_end": "9:50", "subject": "Mathematics", "room": "101"},
	{"time_start": "10:00", "time_end": "10:50", "subject": "Physics", "room": "202"}
]}`

// mondayAt builds a test clock on Monday 2025-03-10 in UTC.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedRecipient subscribes chat 100 with alerts on, 10 minute lead,
// and a UTC timezone so the test clock maps straight to local hours.
func seedRecipient(t *testing.T, store *storage.SQLite, scheduleJSON string) {
	t.Helper()
	ctx := context.Background()
	r := &model.Recipient{
		ChatID:        100,
		Kind:          model.KindUser,
		EducationType: "daytime",
		Course:        "4",
		Group:         "ISE-74R",
		Format:        model.FormatPhoto,
	}
	if err := store.SaveRecipient(ctx, r); err != nil {
		t.Fatalf("save recipient: %v", err)
	}
	ns := &model.NotificationSettings{ChatID: 100, Enabled: true, LeadMinutes: 10, Timezone: "UTC"}
	if err := store.SetNotificationSettings(ctx, ns); err != nil {
		t.Fatalf("set settings: %v", err)
	}
	if err := store.SaveSchedule(ctx, "ISE-74R", scheduleJSON); err != nil {
		t.Fatalf("save schedule: %v", err)
	}
}

func newTestNotifier(t *testing.T, store *storage.SQLite) (*Notifier, *fakeMessenger, *DeletionQueue) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	msgr := &fakeMessenger{}
	q := NewDeletionQueue(msgr, log)
	n := New(store, msgr, q, "UTC", log)
	return n, msgr, q
}

func tickAt(n *Notifier, ts time.Time) {
	n.SetClock(func() time.Time { return ts })
	n.Tick(context.Background())
}

func messageID(t *testing.T, store *storage.SQLite) *int {
	t.Helper()
	nrs, err := store.ListNotifiable(context.Background())
	if err != nil {
		t.Fatalf("list notifiable: %v", err)
	}
	if len(nrs) != 1 {
		t.Fatalf("expected 1 notifiable recipient, got %d", len(nrs))
	}
	return nrs[0].DailyMessageID
}

func TestAlertSentOnceInLeadWindow(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, q := newTestNotifier(t, store)

	// Two ticks inside the window must produce a single alert.
	tickAt(n, mondayAt(8, 50))
	tickAt(n, mondayAt(8, 50))

	if diff := cmp.Diff(1, len(msgr.loud)); diff != "" {
		t.Fatalf("alert count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(100), msgr.loud[0].ChatID); diff != "" {
		t.Errorf("chat mismatch (-want +got):\n%s", diff)
	}

	// The alert is queued for deletion shortly after class start.
	if diff := cmp.Diff(1, q.Len()); diff != "" {
		t.Errorf("deletion queue mismatch (-want +got):\n%s", diff)
	}
}

func TestAlertSkippedOutsideWindow(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	tickAt(n, mondayAt(8, 30)) // 30 minutes out, too early
	tickAt(n, mondayAt(8, 55)) // 5 minutes out, window already passed

	if len(msgr.loud) != 0 {
		t.Errorf("expected no alerts, got %v", msgr.loud)
	}
}

func TestAlertPerClass(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	// Each class gets its own alert as its window opens.
	tickAt(n, mondayAt(8, 50))
	tickAt(n, mondayAt(9, 50))

	if diff := cmp.Diff(2, len(msgr.loud)); diff != "" {
		t.Errorf("alert count mismatch (-want +got):\n%s", diff)
	}
}

func TestDailySummaryPostedOnceAndPinned(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	tickAt(n, mondayAt(7, 0))

	if diff := cmp.Diff(1, len(msgr.silent)); diff != "" {
		t.Fatalf("post count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(msgr.pins)); diff != "" {
		t.Errorf("pin count mismatch (-want +got):\n%s", diff)
	}
	if messageID(t, store) == nil {
		t.Fatal("expected stored daily message id")
	}

	// A later tick with the ID in place must not repost.
	tickAt(n, mondayAt(7, 1))
	if diff := cmp.Diff(1, len(msgr.silent)); diff != "" {
		t.Errorf("repost (-want +got):\n%s", diff)
	}
}

func TestDailySummaryPostedMidDayWhenMissing(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	// The bot may have been down at 07:00; a missing ID posts whenever.
	tickAt(n, mondayAt(13, 37))

	if diff := cmp.Diff(1, len(msgr.silent)); diff != "" {
		t.Errorf("post count mismatch (-want +got):\n%s", diff)
	}
}

func TestDailySummaryNotPostedAtNight(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	tickAt(n, mondayAt(6, 30))

	if len(msgr.silent) != 0 {
		t.Errorf("expected no post before 07:00, got %v", msgr.silent)
	}
}

func TestDailySummaryEditGating(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	msgID := 42
	if err := store.SaveDailyMessageID(context.Background(), 100, &msgID); err != nil {
		t.Fatalf("save message id: %v", err)
	}

	tickAt(n, mondayAt(12, 3)) // off the 5-minute grid, no class soon
	if len(msgr.edits) != 0 {
		t.Fatalf("expected no edit at :03, got %d", len(msgr.edits))
	}

	tickAt(n, mondayAt(12, 5)) // on the grid
	if diff := cmp.Diff(1, len(msgr.edits)); diff != "" {
		t.Fatalf("grid edit mismatch (-want +got):\n%s", diff)
	}

	tickAt(n, mondayAt(8, 51)) // off the grid but 9 minutes before class
	if diff := cmp.Diff(2, len(msgr.edits)); diff != "" {
		t.Errorf("countdown edit mismatch (-want +got):\n%s", diff)
	}
}

func TestDailySummaryDeletedByUserReposts(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	msgID := 42
	if err := store.SaveDailyMessageID(context.Background(), 100, &msgID); err != nil {
		t.Fatalf("save message id: %v", err)
	}
	msgr.editErr = errors.New("Bad Request: message to edit not found")

	tickAt(n, mondayAt(12, 5))

	if messageID(t, store) != nil {
		t.Fatal("expected cleared message id after failed edit")
	}

	// Next tick reposts.
	msgr.editErr = nil
	tickAt(n, mondayAt(12, 10))
	if diff := cmp.Diff(1, len(msgr.silent)); diff != "" {
		t.Errorf("repost mismatch (-want +got):\n%s", diff)
	}
}

func TestDailySummaryResetAtNight(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, _ := newTestNotifier(t, store)

	msgID := 42
	if err := store.SaveDailyMessageID(context.Background(), 100, &msgID); err != nil {
		t.Fatalf("save message id: %v", err)
	}

	tickAt(n, mondayAt(22, 10))

	if messageID(t, store) != nil {
		t.Fatal("expected message id reset after 22:00")
	}
	if len(msgr.silent)+len(msgr.edits) != 0 {
		t.Error("reset tick must not send or edit")
	}

	// The next morning's first tick posts a fresh summary.
	tickAt(n, mondayAt(7, 0).AddDate(0, 0, 1))
	if diff := cmp.Diff(1, len(msgr.silent)); diff != "" {
		t.Errorf("next-day post mismatch (-want +got):\n%s", diff)
	}
}

func TestRecipientWithoutScheduleIsSkipped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := &model.Recipient{ChatID: 100, Kind: model.KindUser, EducationType: "daytime", Course: "4", Group: "ISE-74R", Format: model.FormatPhoto}
	if err := store.SaveRecipient(ctx, r); err != nil {
		t.Fatalf("save recipient: %v", err)
	}
	ns := &model.NotificationSettings{ChatID: 100, Enabled: true, LeadMinutes: 10, Timezone: "UTC"}
	if err := store.SetNotificationSettings(ctx, ns); err != nil {
		t.Fatalf("set settings: %v", err)
	}

	n, msgr, _ := newTestNotifier(t, store)
	tickAt(n, mondayAt(8, 50))

	if len(msgr.loud)+len(msgr.silent) != 0 {
		t.Error("recipient without a stored schedule must be skipped")
	}
}

func TestDeletionQueueFlushesDueOnly(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	msgr := &fakeMessenger{}
	q := NewDeletionQueue(msgr, log)

	q.Enqueue(100, 1, mondayAt(9, 5))
	q.Enqueue(100, 2, mondayAt(10, 55))

	q.SetClock(func() time.Time { return mondayAt(9, 10) })
	q.Flush()

	if diff := cmp.Diff([]int{1}, msgr.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, q.Len()); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}

	q.SetClock(func() time.Time { return mondayAt(11, 0) })
	q.Flush()
	if diff := cmp.Diff([]int{1, 2}, msgr.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestAlertCleanupTime(t *testing.T) {
	store := newTestStore(t)
	seedRecipient(t, store, mondaySchedule)
	n, msgr, q := newTestNotifier(t, store)

	tickAt(n, mondayAt(8, 50))
	if len(msgr.loud) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(msgr.loud))
	}

	// Not due right after class start.
	q.SetClock(func() time.Time { return mondayAt(9, 2) })
	q.Flush()
	if len(msgr.deleted) != 0 {
		t.Fatalf("alert deleted too early: %v", msgr.deleted)
	}

	// Due five minutes past class start.
	q.SetClock(func() time.Time { return mondayAt(9, 6) })
	q.Flush()
	if diff := cmp.Diff(1, len(msgr.deleted)); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}
