package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deleter removes a previously sent message.
type Deleter interface {
	DeleteMessage(chatID int64, messageID int) error
}

// pendingDeletion is one message scheduled for removal.
type pendingDeletion struct {
	ChatID    int64
	MessageID int
	FireAt    time.Time
}

// DeletionQueue holds alert messages until their cleanup time. Alerts
// are noise once the class has started, so each one is deleted a few
// minutes past its class start.
type DeletionQueue struct {
	deleter Deleter
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending []pendingDeletion
}

// NewDeletionQueue creates an empty queue.
func NewDeletionQueue(deleter Deleter, log *slog.Logger) *DeletionQueue {
	return &DeletionQueue{
		deleter: deleter,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the time source (useful for testing).
func (q *DeletionQueue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue schedules a message for deletion at fireAt.
func (q *DeletionQueue) Enqueue(chatID int64, messageID int, fireAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, pendingDeletion{ChatID: chatID, MessageID: messageID, FireAt: fireAt})
}

// Len returns the number of messages still waiting.
func (q *DeletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush deletes every message whose fire time has passed. Failures are
// logged and dropped; a message that cannot be deleted is not retried.
func (q *DeletionQueue) Flush() {
	now := q.now()

	q.mu.Lock()
	var due, rest []pendingDeletion
	for _, p := range q.pending {
		if p.FireAt.After(now) {
			rest = append(rest, p)
		} else {
			due = append(due, p)
		}
	}
	q.pending = rest
	q.mu.Unlock()

	for _, p := range due {
		if err := q.deleter.DeleteMessage(p.ChatID, p.MessageID); err != nil {
			q.log.Debug("delete alert message", "chat_id", p.ChatID, "message_id", p.MessageID, "error", err)
		}
	}
}

// Run flushes the queue every 30 seconds until ctx is cancelled.
func (q *DeletionQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Flush()
		}
	}
}
