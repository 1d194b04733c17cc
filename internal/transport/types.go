package transport

import "context"

// Message is one inbound chat message, normalized away from the
// platform-specific update shape.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the chat-platform boundary. The reminder core only ever calls
// SendText; inbound messages flow out through the channel given to Start.
type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
