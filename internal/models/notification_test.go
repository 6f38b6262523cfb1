package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_MarkFailed_LinearBackoff(t *testing.T) {
	n := &Notification{Status: NotificationPending}
	sendErr := errors.New("connection refused")

	for i := 1; i <= 4; i++ {
		now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		n.MarkFailed(sendErr, now)

		assert.Equal(t, NotificationFailed, n.Status)
		assert.Equal(t, i, n.RetryCount)
		require.NotNil(t, n.NextRetryAt)
		// after the n-th failure: failure_time + 5*n minutes
		assert.Equal(t, now.Add(time.Duration(i)*5*time.Minute), *n.NextRetryAt)
		require.NotNil(t, n.ErrorMessage)
		assert.Equal(t, "connection refused", *n.ErrorMessage)
	}
}

func TestNotification_MarkSent(t *testing.T) {
	n := &Notification{Status: NotificationFailed, RetryCount: 2}
	now := time.Now().UTC()

	n.MarkSent(now)

	assert.Equal(t, NotificationSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, now, *n.SentAt)
	assert.Nil(t, n.NextRetryAt)
	// retry_count keeps its history
	assert.Equal(t, 2, n.RetryCount)
}

func TestNotification_MarkBounced(t *testing.T) {
	n := &Notification{Status: NotificationFailed, RetryCount: 12}

	n.MarkBounced(errors.New("mailbox unavailable"))

	assert.Equal(t, NotificationBounced, n.Status)
	assert.Nil(t, n.NextRetryAt)
	require.NotNil(t, n.ErrorMessage)
}

func TestNotification_IsDue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		n    Notification
		want bool
	}{
		{"failed and due", Notification{Status: NotificationFailed, NextRetryAt: &past}, true},
		{"failed but not due yet", Notification{Status: NotificationFailed, NextRetryAt: &future}, false},
		{"sent is terminal", Notification{Status: NotificationSent, NextRetryAt: &past}, false},
		{"pending has no schedule", Notification{Status: NotificationPending}, false},
		{"bounced is terminal", Notification{Status: NotificationBounced, NextRetryAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.IsDue(now))
		})
	}
}
