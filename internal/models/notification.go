package models

import (
	"encoding/json"
	"time"
)

// NotificationStatus represents the delivery state of a notification
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationBounced NotificationStatus = "bounced"
)

// RecipientRole tags who a notification was addressed to
type RecipientRole string

const (
	RoleClient      RecipientRole = "client"
	RoleCoordinator RecipientRole = "coordinator"
	RoleObserver    RecipientRole = "observer"
	RoleExtra       RecipientRole = "extra"
)

// retryInterval is the linear backoff unit between resend attempts
const retryInterval = 5 * time.Minute

// Notification represents one persisted, retried delivery to one recipient
type Notification struct {
	ID           int                `json:"id,omitempty" db:"id"`
	Type         string             `json:"type" db:"type"`
	Recipient    string             `json:"recipient" db:"recipient"`
	Role         RecipientRole      `json:"role" db:"role"`
	Subject      string             `json:"subject" db:"subject"`
	Body         string             `json:"body" db:"body"`
	Metadata     json.RawMessage    `json:"metadata,omitempty" db:"metadata"`
	Status       NotificationStatus `json:"status" db:"status"`
	SentAt       *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage *string            `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int                `json:"retry_count" db:"retry_count"`
	NextRetryAt  *time.Time         `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt    time.Time          `json:"created_at,omitempty" db:"created_at"`
}

// MarkSent records a successful delivery; sent is terminal
func (n *Notification) MarkSent(now time.Time) {
	n.Status = NotificationSent
	n.SentAt = &now
	n.NextRetryAt = nil
}

// MarkFailed records a failed delivery and schedules the next retry with
// linear backoff: now + 5 * retry_count minutes
func (n *Notification) MarkFailed(sendErr error, now time.Time) {
	n.Status = NotificationFailed
	msg := sendErr.Error()
	n.ErrorMessage = &msg
	n.RetryCount++
	next := now.Add(time.Duration(n.RetryCount) * retryInterval)
	n.NextRetryAt = &next
}

// MarkBounced records that retries are exhausted; bounced is terminal
func (n *Notification) MarkBounced(sendErr error) {
	n.Status = NotificationBounced
	msg := sendErr.Error()
	n.ErrorMessage = &msg
	n.NextRetryAt = nil
}

// IsDue reports whether a failed notification should be retried now
func (n *Notification) IsDue(now time.Time) bool {
	return n.Status == NotificationFailed && n.NextRetryAt != nil && !n.NextRetryAt.After(now)
}
