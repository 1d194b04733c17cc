package bot

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const handlerTimeout = 10 * time.Second

// Router consumes inbound messages from the transport adapter and
// dispatches the reminder commands. Deliberately thin: no interactive
// forms, no role system; reminders are owner-scoped by sender id.
type Router struct {
	adapter kit.Adapter
	svc     *reminder.Service
	log     logx.Logger

	updates chan kit.Message
}

func NewRouter(adapter kit.Adapter, svc *reminder.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		adapter: adapter,
		svc:     svc,
		log:     log,
		updates: make(chan kit.Message, 128),
	}
}

// Updates returns the channel the adapter should feed.
func (r *Router) Updates() chan kit.Message { return r.updates }

// Run blocks until ctx is done, dispatching commands as they arrive.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-r.updates:
			r.dispatch(ctx, m)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, m kit.Message) {
	cmd, args := splitCommand(m.Text)
	if cmd == "" {
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	switch cmd {
	case "remind":
		r.handleRemind(hctx, m, args)
	case "reminders":
		r.handleList(hctx, m)
	case "cancelreminder":
		r.handleCancel(hctx, m, args)
	case "help", "start":
		r.handleHelp(hctx, m)
	}
}

// splitCommand extracts the command name and the remaining argument string.
// Telegram group clients may suffix commands with @botname; that is stripped.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (r *Router) reply(ctx context.Context, m kit.Message, text string) {
	if _, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Err(err), logx.Int64("chat", m.ChatID))
	}
}
