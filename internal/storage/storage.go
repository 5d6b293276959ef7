// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"schedule_bot/internal/model"
)

// ErrNotFound reports that a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	SaveRecipient(ctx context.Context, r *model.Recipient) error
	GetRecipient(ctx context.Context, chatID int64) (*model.Recipient, error)
	DeleteRecipient(ctx context.Context, chatID int64) error
	ListRecipients(ctx context.Context) ([]model.Recipient, error)
	SetFormat(ctx context.Context, chatID int64, format model.Format) error

	NotificationSettings(ctx context.Context, chatID int64) (*model.NotificationSettings, error)
	SetNotificationSettings(ctx context.Context, s *model.NotificationSettings) error
	ToggleNotifications(ctx context.Context, chatID int64) (bool, error)
	ListNotifiable(ctx context.Context) ([]model.NotifiableRecipient, error)
	SaveDailyMessageID(ctx context.Context, chatID int64, messageID *int) error

	MarkAlertSent(ctx context.Context, chatID int64, classStart, date string) error
	WasAlertSent(ctx context.Context, chatID int64, classStart, date string) (bool, error)
	CleanupSentAlerts(ctx context.Context, olderThan time.Duration) (int64, error)

	SaveSchedule(ctx context.Context, group, scheduleJSON string) error
	GetSchedule(ctx context.Context, group string) (string, error)

	TrackedFile(ctx context.Context, key string) (*model.TrackedFile, error)
	SetTrackedVersion(ctx context.Context, key, version string) error
	RecordCheckFailure(ctx context.Context, key string) (int, error)
	ResetCheckFailures(ctx context.Context, key string) error
	ListFailingFiles(ctx context.Context, threshold int) ([]model.TrackedFile, error)

	IsAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	ListAdmins(ctx context.Context) ([]int64, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	LogAction(ctx context.Context, chatID int64, action, details string) error
	CleanupActionLogs(ctx context.Context, olderThan time.Duration) (int64, error)

	Stats(ctx context.Context, failThreshold int) (*model.Stats, error)

	Close() error
}
