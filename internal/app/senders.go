package app

import (
	"context"

	kit "remindbot/internal/transport"
)

// messenger adapts the transport adapter to the reminder engine's outbound
// surface. For Telegram a direct message is a send to the user id chat.
type messenger struct {
	adapter kit.Adapter
}

func (m messenger) SendDirect(ctx context.Context, userID int64, text string) error {
	_, err := m.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, nil)
	return err
}

func (m messenger) SendChannel(ctx context.Context, channelID int64, text string) error {
	_, err := m.adapter.SendText(ctx, kit.ChatTarget{ChatID: channelID}, text, nil)
	return err
}

// plainSender feeds the telegram log sink.
type plainSender struct {
	adapter kit.Adapter
}

func (s plainSender) SendPlain(ctx context.Context, chatID int64, text string) error {
	_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}
