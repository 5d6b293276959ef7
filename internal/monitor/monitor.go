// Package monitor polls Drive for changed schedule files and fans
// updates out to the subscribed recipients.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"schedule_bot/internal/convert"
	"schedule_bot/internal/drive"
	"schedule_bot/internal/extractor"
	"schedule_bot/internal/model"
	"schedule_bot/internal/storage"
)

// FailThreshold is how many consecutive check failures trigger the
// admin escalation.
const FailThreshold = 3

// sendDelay spaces out deliveries to stay under Telegram flood limits.
const sendDelay = 50 * time.Millisecond

// Library resolves and downloads schedule files.
type Library interface {
	FileInfo(ctx context.Context, educationType, fileName, course string) (*drive.FileInfo, error)
	DownloadSchedule(ctx context.Context, educationType, fileName, course string) (string, *drive.FileInfo, error)
}

// Sender is the interface for delivering updates to Telegram.
type Sender interface {
	SendMessage(chatID int64, text string) (int, error)
	SendPhotoAlbum(chatID int64, imagePaths []string, caption string) error
	SendDocument(chatID int64, filePath, caption string) error
}

// Monitor periodically reconciles tracked schedule files against Drive.
type Monitor struct {
	store     storage.Storage
	library   Library
	sender    Sender
	converter convert.Converter
	extractor extractor.Extractor
	admins    []int64
	log       *slog.Logger

	intervalMu sync.Mutex
	interval   time.Duration

	mu    sync.Mutex // held for the duration of a sweep
	delay time.Duration
}

// New creates a Monitor. Admins receive escalation messages when a
// file keeps failing its checks.
func New(store storage.Storage, library Library, sender Sender, converter convert.Converter, ext extractor.Extractor, admins []int64, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		store:     store,
		library:   library,
		sender:    sender,
		converter: converter,
		extractor: ext,
		admins:    admins,
		interval:  interval,
		log:       log,
		delay:     sendDelay,
	}
}

// SetSendDelay overrides the inter-send pause (useful for testing).
func (m *Monitor) SetSendDelay(d time.Duration) {
	m.delay = d
}

// Run starts the polling loop, blocking until ctx is cancelled. The
// first sweep runs immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.Sweep(ctx)

	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
			ticker.Reset(m.Interval())
		}
	}
}

// Interval returns the current polling interval.
func (m *Monitor) Interval() time.Duration {
	m.intervalMu.Lock()
	defer m.intervalMu.Unlock()
	return m.interval
}

// SetInterval changes the polling interval; the running loop picks it
// up after its next sweep.
func (m *Monitor) SetInterval(d time.Duration) {
	m.intervalMu.Lock()
	m.interval = d
	m.intervalMu.Unlock()
}

// Sweep runs one reconciliation pass over every tracked file. If a
// sweep is already in progress the call is a no-op.
func (m *Monitor) Sweep(ctx context.Context) {
	if !m.mu.TryLock() {
		m.log.Warn("sweep already in progress, skipping")
		return
	}
	defer m.mu.Unlock()

	recipients, err := m.store.ListRecipients(ctx)
	if err != nil {
		m.log.Error("list recipients", "error", err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	groups := groupByFile(recipients)
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	m.log.Debug("sweep start", "files", len(keys), "recipients", len(recipients))
	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		m.checkFile(ctx, key, groups[key])
	}
}

// groupByFile dedupes recipients into one entry per tracked file, so a
// file shared by many subscribers is checked and downloaded once.
func groupByFile(recipients []model.Recipient) map[string][]model.Recipient {
	groups := make(map[string][]model.Recipient)
	for _, r := range recipients {
		key := r.FileKey()
		groups[key] = append(groups[key], r)
	}
	return groups
}

func (m *Monitor) checkFile(ctx context.Context, key string, recipients []model.Recipient) {
	// All recipients in the group share education type, course and
	// file name, so any of them describes the file.
	ref := recipients[0]

	info, err := m.library.FileInfo(ctx, ref.EducationType, ref.FileName(), ref.Course)
	if err != nil {
		m.recordFailure(ctx, key, err)
		return
	}

	tracked, err := m.store.TrackedFile(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First sighting establishes the baseline without a fanout.
		m.log.Info("tracking new file", "key", key, "version", info.Version)
		if err := m.store.SetTrackedVersion(ctx, key, info.Version); err != nil {
			m.log.Error("set tracked version", "key", key, "error", err)
		}
		return
	case err != nil:
		m.log.Error("read tracked file", "key", key, "error", err)
		return
	}

	if tracked.LastSeenVersion == info.Version {
		if tracked.FailCount > 0 {
			if err := m.store.ResetCheckFailures(ctx, key); err != nil {
				m.log.Error("reset check failures", "key", key, "error", err)
			}
		}
		return
	}

	m.log.Info("file changed", "key", key, "old", tracked.LastSeenVersion, "new", info.Version)
	if err := m.deliverUpdate(ctx, ref, recipients, info); err != nil {
		m.recordFailure(ctx, key, err)
		return
	}

	if err := m.store.SetTrackedVersion(ctx, key, info.Version); err != nil {
		m.log.Error("set tracked version", "key", key, "error", err)
	}
}

// deliverUpdate downloads the changed file once, sends it to every
// subscriber of the file, and refreshes the stored structured schedule.
func (m *Monitor) deliverUpdate(ctx context.Context, ref model.Recipient, recipients []model.Recipient, info *drive.FileInfo) error {
	pdfPath, _, err := m.library.DownloadSchedule(ctx, ref.EducationType, ref.FileName(), ref.Course)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = os.Remove(pdfPath) }()

	images, convErr := m.converter.ToImages(pdfPath)
	if convErr != nil {
		m.log.Warn("render pdf", "file", ref.FileName(), "error", convErr)
	} else {
		defer m.converter.Cleanup(images)
	}

	caption := UpdateCaption(ref.Group, info)
	for i, r := range recipients {
		if i > 0 {
			time.Sleep(m.delay)
		}
		m.sendTo(r, pdfPath, images, caption)
	}

	if convErr == nil && m.extractor != nil {
		m.refreshSchedule(ctx, ref.Group, images[0])
	}
	return nil
}

// sendTo delivers one update honoring the recipient's format, falling
// back to the document when the photo album fails.
func (m *Monitor) sendTo(r model.Recipient, pdfPath string, images []string, caption string) {
	if r.Format == model.FormatPhoto && len(images) > 0 {
		err := m.sender.SendPhotoAlbum(r.ChatID, images, caption)
		if err == nil {
			return
		}
		m.log.Warn("send photo album", "chat_id", r.ChatID, "error", err)
	}
	if err := m.sender.SendDocument(r.ChatID, pdfPath, caption); err != nil {
		m.log.Error("send document", "chat_id", r.ChatID, "error", err)
	}
}

// refreshSchedule re-extracts the structured week from the first page
// and persists it only when the extraction parses cleanly.
func (m *Monitor) refreshSchedule(ctx context.Context, group, imagePath string) {
	week, err := m.extractor.Extract(ctx, imagePath)
	if err != nil {
		m.log.Warn("extract schedule", "group", group, "error", err)
		return
	}
	raw, err := week.Marshal()
	if err != nil {
		m.log.Error("marshal schedule", "group", group, "error", err)
		return
	}
	if err := m.store.SaveSchedule(ctx, group, string(raw)); err != nil {
		m.log.Error("save schedule", "group", group, "error", err)
		return
	}
	m.log.Info("schedule refreshed", "group", group)
}

// recordFailure bumps the failure counter and escalates to the admins
// exactly when the counter crosses the threshold.
func (m *Monitor) recordFailure(ctx context.Context, key string, cause error) {
	m.log.Error("check file", "key", key, "error", cause)

	count, err := m.store.RecordCheckFailure(ctx, key)
	if err != nil {
		m.log.Error("record check failure", "key", key, "error", err)
		return
	}
	if count != FailThreshold {
		return
	}

	text := fmt.Sprintf("⚠️ Schedule file %s has failed %d checks in a row.\nLast error: %v", key, count, cause)
	for _, admin := range m.admins {
		if _, err := m.sender.SendMessage(admin, text); err != nil {
			m.log.Error("notify admin", "admin", admin, "error", err)
		}
	}
}

// UpdateCaption builds the message text attached to a schedule fanout.
func UpdateCaption(group string, info *drive.FileInfo) string {
	return fmt.Sprintf("📅 Schedule updated for %s\n🕒 Modified: %s\n📦 Size: %s", group, info.ModifiedTime, info.Size)
}
