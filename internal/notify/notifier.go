// Package notify delivers execution outcomes to wallet owners.
// Delivery is fire-and-forget: callers log failures and never let them
// propagate into a ledger transaction.
package notify

import (
	"context"

	"gitlab.com/yelinaung/finance-tracker/internal/logger"
)

// Notifier sends a message to a wallet owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, subject, body string) error
}

// LogNotifier writes notifications to the application log. It is the default
// when no outbound transport is configured.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification. Never fails.
func (n *LogNotifier) Notify(_ context.Context, ownerID int64, subject, body string) error {
	logger.Log.Info().
		Str("owner_hash", logger.HashOwnerID(ownerID)).
		Str("subject", subject).
		Str("body", body).
		Msg("Notification")
	return nil
}
