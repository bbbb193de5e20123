package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// MessageSender is the subset of the Telegram bot API the notifier needs.
// Abstracted so tests can substitute a fake.
type MessageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

// Compile-time check that the real bot satisfies the interface.
var _ MessageSender = (*tgbot.Bot)(nil)

// TelegramNotifier delivers notifications as Telegram messages. The owner ID
// doubles as the chat ID, matching how owners are registered.
type TelegramNotifier struct {
	sender MessageSender
}

// NewTelegramNotifier creates a notifier over an authenticated bot.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{sender: b}, nil
}

// NewTelegramNotifierWithSender creates a notifier with a custom sender.
// Primarily used for testing.
func NewTelegramNotifierWithSender(sender MessageSender) *TelegramNotifier {
	return &TelegramNotifier{sender: sender}
}

// Notify sends "subject\n\nbody" to the owner's chat.
func (n *TelegramNotifier) Notify(ctx context.Context, ownerID int64, subject, body string) error {
	_, err := n.sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: ownerID,
		Text:   subject + "\n\n" + body,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
