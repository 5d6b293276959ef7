// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// RecipientKind distinguishes individual users from group chats.
type RecipientKind string

// Supported recipient kinds.
const (
	KindUser RecipientKind = "user"
	KindChat RecipientKind = "chat"
)

// Format defines how a schedule file is delivered to a recipient.
type Format string

// Supported delivery formats.
const (
	FormatPhoto    Format = "photo"
	FormatDocument Format = "document"
)

// Recipient is a user or group chat subscribed to one schedule file.
type Recipient struct {
	ChatID        int64
	Kind          RecipientKind
	EducationType string
	Course        string
	Group         string
	Format        Format
	CreatedAt     time.Time
}

// FileName derives the schedule file name from the group code.
func (r *Recipient) FileName() string {
	return r.Group + ".pdf"
}

// FileKey uniquely identifies the tracked schedule file for this recipient.
func (r *Recipient) FileKey() string {
	return FileKey(r.EducationType, r.Course, r.FileName())
}

// FileKey builds the tracked-file identity used by the reconciler.
func FileKey(educationType, course, fileName string) string {
	return educationType + "_" + course + "_" + fileName
}

// GroupFromFileName strips the .pdf suffix: "ISE-74R.pdf" -> "ISE-74R".
func GroupFromFileName(fileName string) string {
	return strings.TrimSuffix(fileName, ".pdf")
}

// TrackedFile holds the durable poll state of one schedule file.
type TrackedFile struct {
	Key             string
	LastSeenVersion string
	FailCount       int
	UpdatedAt       time.Time
}

// NotificationSettings holds a recipient's alert preferences.
type NotificationSettings struct {
	ChatID      int64
	Enabled     bool
	LeadMinutes int
	Timezone    string
}

// NotifiableRecipient is the join row the notification tick iterates over.
type NotifiableRecipient struct {
	ChatID         int64
	Group          string
	LeadMinutes    int
	Timezone       string
	DailyMessageID *int
}

// Stats aggregates counters for the admin panel.
type Stats struct {
	Users     int
	Chats     int
	Schedules int
	Tracked   int
	Failing   int
}
