package app

import (
	"context"

	"remindbot/internal/notifier"
	kit "remindbot/internal/transport"
)

// delivery hands reminder text to the notifier queue, or straight to the
// chat when the notifier is disabled.
type delivery struct {
	notif  *notifier.Service
	direct kit.Sender
}

func (d delivery) Send(ctx context.Context, chatID int64, text string) error {
	if d.notif != nil && d.notif.Enabled() {
		return d.notif.Send(ctx, chatID, text)
	}
	_, err := d.direct.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}

func (d delivery) SendKeyed(ctx context.Context, key string, chatID int64, text string) error {
	if d.notif != nil && d.notif.Enabled() {
		return d.notif.SendKeyed(ctx, key, chatID, text)
	}
	_, err := d.direct.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}
