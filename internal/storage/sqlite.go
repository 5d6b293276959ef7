package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"schedule_bot/internal/model"
	"schedule_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

// SaveRecipient upserts a recipient's subscription.
func (s *SQLite) SaveRecipient(ctx context.Context, r *model.Recipient) error {
	now := nowString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients (chat_id, kind, education_type, course, group_code, format, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   kind = excluded.kind,
		   education_type = excluded.education_type,
		   course = excluded.course,
		   group_code = excluded.group_code,
		   format = excluded.format`,
		r.ChatID, string(r.Kind), r.EducationType, r.Course, r.Group, string(r.Format), now,
	)
	if err != nil {
		return fmt.Errorf("save recipient: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt, _ = time.Parse(timeLayout, now)
	}
	return nil
}

// GetRecipient returns a recipient by chat ID.
func (s *SQLite) GetRecipient(ctx context.Context, chatID int64) (*model.Recipient, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, kind, education_type, course, group_code, format, created_at
		 FROM recipients WHERE chat_id = ?`, chatID,
	)
	r, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipient %d: %w", chatID, ErrNotFound)
	}
	return r, err
}

// DeleteRecipient removes a recipient and its notification state.
func (s *SQLite) DeleteRecipient(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notification_settings WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete notification settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sent_alerts WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete sent alerts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete recipient: %w", err)
	}
	return tx.Commit()
}

// ListRecipients returns all subscribed recipients.
func (s *SQLite) ListRecipients(ctx context.Context) ([]model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, kind, education_type, course, group_code, format, created_at
		 FROM recipients ORDER BY chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recipients []model.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, *r)
	}
	return recipients, rows.Err()
}

// SetFormat updates a recipient's delivery format.
func (s *SQLite) SetFormat(ctx context.Context, chatID int64, format model.Format) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipients SET format = ? WHERE chat_id = ?`, string(format), chatID,
	)
	if err != nil {
		return fmt.Errorf("set format: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recipient %d: %w", chatID, ErrNotFound)
	}
	return nil
}

// NotificationSettings returns a recipient's alert preferences. Absent
// rows come back as ErrNotFound; callers create defaults as needed.
func (s *SQLite) NotificationSettings(ctx context.Context, chatID int64) (*model.NotificationSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, enabled, lead_minutes, timezone FROM notification_settings WHERE chat_id = ?`, chatID,
	)
	var ns model.NotificationSettings
	var enabled int
	err := row.Scan(&ns.ChatID, &enabled, &ns.LeadMinutes, &ns.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification settings %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification settings: %w", err)
	}
	ns.Enabled = enabled == 1
	return &ns, nil
}

// SetNotificationSettings upserts alert preferences, preserving any
// stored daily message ID.
func (s *SQLite) SetNotificationSettings(ctx context.Context, ns *model.NotificationSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_settings (chat_id, enabled, lead_minutes, timezone)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   enabled = excluded.enabled,
		   lead_minutes = excluded.lead_minutes,
		   timezone = excluded.timezone`,
		ns.ChatID, boolToInt(ns.Enabled), ns.LeadMinutes, ns.Timezone,
	)
	if err != nil {
		return fmt.Errorf("set notification settings: %w", err)
	}
	return nil
}

// ToggleNotifications flips the enabled flag, creating default settings
// (enabled) for first-time users. Returns the new state.
func (s *SQLite) ToggleNotifications(ctx context.Context, chatID int64) (bool, error) {
	ns, err := s.NotificationSettings(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		def := &model.NotificationSettings{ChatID: chatID, Enabled: true, LeadMinutes: 10, Timezone: "Asia/Tashkent"}
		return true, s.SetNotificationSettings(ctx, def)
	}
	if err != nil {
		return false, err
	}
	ns.Enabled = !ns.Enabled
	return ns.Enabled, s.SetNotificationSettings(ctx, ns)
}

// ListNotifiable returns every recipient whose notifications are on,
// joined with their group and alert preferences.
func (s *SQLite) ListNotifiable(ctx context.Context) ([]model.NotifiableRecipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.chat_id, r.group_code, ns.lead_minutes, ns.timezone, ns.daily_message_id
		 FROM recipients r
		 JOIN notification_settings ns ON r.chat_id = ns.chat_id
		 WHERE ns.enabled = 1
		 ORDER BY r.chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifiable recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.NotifiableRecipient
	for rows.Next() {
		var nr model.NotifiableRecipient
		var msgID sql.NullInt64
		if err := rows.Scan(&nr.ChatID, &nr.Group, &nr.LeadMinutes, &nr.Timezone, &msgID); err != nil {
			return nil, fmt.Errorf("scan notifiable recipient: %w", err)
		}
		if msgID.Valid {
			v := int(msgID.Int64)
			nr.DailyMessageID = &v
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

// SaveDailyMessageID stores or clears the pinned daily summary message ID.
func (s *SQLite) SaveDailyMessageID(ctx context.Context, chatID int64, messageID *int) error {
	var v any
	if messageID != nil {
		v = *messageID
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_settings SET daily_message_id = ? WHERE chat_id = ?`, v, chatID,
	)
	if err != nil {
		return fmt.Errorf("save daily message id: %w", err)
	}
	return nil
}

// MarkAlertSent records that a pre-class alert went out.
func (s *SQLite) MarkAlertSent(ctx context.Context, chatID int64, classStart, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_alerts (chat_id, class_start, sent_date, created_at)
		 VALUES (?, ?, ?, ?)`,
		chatID, classStart, date, nowString(),
	)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

// WasAlertSent checks whether an alert for this class and date already
// went out.
func (s *SQLite) WasAlertSent(ctx context.Context, chatID int64, classStart, date string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_alerts WHERE chat_id = ? AND class_start = ? AND sent_date = ?`,
		chatID, classStart, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check alert sent: %w", err)
	}
	return count > 0, nil
}

// CleanupSentAlerts deletes alert records older than the given age.
func (s *SQLite) CleanupSentAlerts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sent_alerts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sent alerts: %w", err)
	}
	return res.RowsAffected()
}

// SaveSchedule upserts a group's structured schedule JSON.
func (s *SQLite) SaveSchedule(ctx context.Context, group, scheduleJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (group_code, schedule_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(group_code) DO UPDATE SET
		   schedule_json = excluded.schedule_json,
		   updated_at = excluded.updated_at`,
		group, scheduleJSON, nowString(),
	)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// GetSchedule returns a group's stored schedule JSON.
func (s *SQLite) GetSchedule(ctx context.Context, group string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT schedule_json FROM schedules WHERE group_code = ?`, group,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("schedule for %s: %w", group, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get schedule: %w", err)
	}
	return raw, nil
}

// TrackedFile returns the poll state of a schedule file.
func (s *SQLite) TrackedFile(ctx context.Context, key string) (*model.TrackedFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT file_key, last_seen_version, fail_count, updated_at FROM tracked_files WHERE file_key = ?`, key,
	)
	var tf model.TrackedFile
	var updated string
	err := row.Scan(&tf.Key, &tf.LastSeenVersion, &tf.FailCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracked file %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan tracked file: %w", err)
	}
	tf.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &tf, nil
}

// SetTrackedVersion upserts the last seen version token and resets the
// failure counter (called only on successful lookups).
func (s *SQLite) SetTrackedVersion(ctx context.Context, key, version string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_files (file_key, last_seen_version, fail_count, updated_at)
		 VALUES (?, ?, 0, ?)
		 ON CONFLICT(file_key) DO UPDATE SET
		   last_seen_version = excluded.last_seen_version,
		   fail_count = 0,
		   updated_at = excluded.updated_at`,
		key, version, nowString(),
	)
	if err != nil {
		return fmt.Errorf("set tracked version: %w", err)
	}
	return nil
}

// RecordCheckFailure increments the consecutive failure counter,
// creating the row for files that never resolved successfully. Returns
// the new count.
func (s *SQLite) RecordCheckFailure(ctx context.Context, key string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_files (file_key, last_seen_version, fail_count, updated_at)
		 VALUES (?, '', 1, ?)
		 ON CONFLICT(file_key) DO UPDATE SET
		   fail_count = fail_count + 1,
		   updated_at = excluded.updated_at`,
		key, nowString(),
	)
	if err != nil {
		return 0, fmt.Errorf("record check failure: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT fail_count FROM tracked_files WHERE file_key = ?`, key,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("read fail count: %w", err)
	}
	return count, nil
}

// ResetCheckFailures zeroes the consecutive failure counter.
func (s *SQLite) ResetCheckFailures(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_files SET fail_count = 0 WHERE file_key = ?`, key,
	)
	if err != nil {
		return fmt.Errorf("reset check failures: %w", err)
	}
	return nil
}

// ListFailingFiles returns tracked files at or past the failure threshold.
func (s *SQLite) ListFailingFiles(ctx context.Context, threshold int) ([]model.TrackedFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_key, last_seen_version, fail_count, updated_at
		 FROM tracked_files WHERE fail_count >= ? ORDER BY file_key`, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("query failing files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TrackedFile
	for rows.Next() {
		var tf model.TrackedFile
		var updated string
		if err := rows.Scan(&tf.Key, &tf.LastSeenVersion, &tf.FailCount, &updated); err != nil {
			return nil, fmt.Errorf("scan failing file: %w", err)
		}
		tf.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, tf)
	}
	return out, rows.Err()
}

// IsAdmin checks whether a user is in the admins table.
func (s *SQLite) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admins WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return count > 0, nil
}

// AddAdmin records a user as an admin.
func (s *SQLite) AddAdmin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO admins (user_id, added_at) VALUES (?, ?)`, userID, nowString(),
	)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

// ListAdmins returns all admin user IDs.
func (s *SQLite) ListAdmins(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM admins ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSetting returns a settings value, or "" when the key is absent.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowString(),
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// LogAction records a user/chat action for the admin activity view.
func (s *SQLite) LogAction(ctx context.Context, chatID int64, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_logs (chat_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		chatID, action, details, nowString(),
	)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// CleanupActionLogs deletes log rows older than the given age.
func (s *SQLite) CleanupActionLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup action logs: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates counters for the admin panel.
func (s *SQLite) Stats(ctx context.Context, failThreshold int) (*model.Stats, error) {
	var stats model.Stats
	queries := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.Users, `SELECT COUNT(*) FROM recipients WHERE kind = 'user'`, nil},
		{&stats.Chats, `SELECT COUNT(*) FROM recipients WHERE kind = 'chat'`, nil},
		{&stats.Schedules, `SELECT COUNT(*) FROM schedules`, nil},
		{&stats.Tracked, `SELECT COUNT(*) FROM tracked_files`, nil},
		{&stats.Failing, `SELECT COUNT(*) FROM tracked_files WHERE fail_count >= ?`, []any{failThreshold}},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("stats query: %w", err)
		}
	}
	return &stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecipient(row scannable) (*model.Recipient, error) {
	var r model.Recipient
	var kind, format string
	var created sql.NullString
	err := row.Scan(&r.ChatID, &kind, &r.EducationType, &r.Course, &r.Group, &format, &created)
	if err != nil {
		return nil, err
	}
	r.Kind = model.RecipientKind(kind)
	r.Format = model.Format(format)
	if r.Kind != model.KindUser && r.Kind != model.KindChat {
		r.Kind = model.KindUser
	}
	if r.Format != model.FormatPhoto && r.Format != model.FormatDocument {
		r.Format = model.FormatPhoto
	}
	if created.Valid {
		r.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &r, nil
}
