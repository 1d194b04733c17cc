package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const helpText = `Reminder commands:

/remind <when> | <message> — schedule a reminder in this chat.
  Append --dm to receive it as a direct message instead.
  Examples:
    /remind 2026-09-01 09:00 | standup
    /remind 18:30 | push the release --dm

/reminders — list your pending reminders.
/cancelreminder <id> — cancel one of your reminders.`

// remindArgs is the parsed form of "/remind <when> | <message> [--dm]".
type remindArgs struct {
	When    string
	Message string
	DM      bool
}

func parseRemindArgs(raw string) (remindArgs, error) {
	var a remindArgs
	if strings.Contains(raw, "--dm") {
		a.DM = true
		raw = strings.ReplaceAll(raw, "--dm", "")
	}
	when, msg, ok := strings.Cut(raw, "|")
	if !ok {
		return a, errors.New("missing '|' separator")
	}
	a.When = strings.TrimSpace(when)
	a.Message = strings.TrimSpace(msg)
	if a.When == "" {
		return a, errors.New("missing time")
	}
	if a.Message == "" {
		return a, errors.New("missing message")
	}
	return a, nil
}

func (r *Router) handleRemind(ctx context.Context, m kit.Message, raw string) {
	args, err := parseRemindArgs(raw)
	if err != nil {
		r.reply(ctx, m, "Usage: /remind <when> | <message> [--dm]\nExample: /remind 2026-09-01 09:00 | standup")
		return
	}

	rem, err := r.svc.Create(ctx, m.FromID, m.ChatID, args.When, args.Message, args.DM)
	if err != nil {
		r.reply(ctx, m, createErrorText(err, args.When))
		return
	}

	where := "here"
	if rem.DM {
		where = "by DM"
	}
	r.reply(ctx, m, fmt.Sprintf("Reminder #%d set for %s (%s).", rem.ID, formatFireAt(rem.FireAt), where))
}

func createErrorText(err error, when string) string {
	var pe *reminder.ParseError
	switch {
	case errors.As(err, &pe):
		return fmt.Sprintf("I can't read %q as a date/time. Try e.g. \"2026-09-01 09:00\" (UTC).", when)
	case errors.Is(err, reminder.ErrPastTime):
		return "That time is already in the past (times are UTC)."
	case errors.Is(err, reminder.ErrDailyLimit):
		return "You already have a reminder for that day. Cancel it first with /cancelreminder."
	default:
		return "Couldn't save the reminder, try again later."
	}
}

func (r *Router) handleList(ctx context.Context, m kit.Message) {
	rems, err := r.svc.List(ctx, m.FromID)
	if err != nil {
		r.log.Warn("list failed", logx.Err(err), logx.Int64("owner", m.FromID))
		r.reply(ctx, m, "Couldn't load your reminders, try again later.")
		return
	}
	if len(rems) == 0 {
		r.reply(ctx, m, "You have no pending reminders.")
		return
	}

	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for _, rem := range rems {
		where := "channel"
		if rem.DM {
			where = "dm"
		}
		fmt.Fprintf(&b, "#%d — %s (%s): %s\n", rem.ID, formatFireAt(rem.FireAt), where, rem.Message)
	}
	r.reply(ctx, m, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) handleCancel(ctx context.Context, m kit.Message, raw string) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		r.reply(ctx, m, "Usage: /cancelreminder <id> — see /reminders for ids.")
		return
	}

	ok, err := r.svc.Cancel(ctx, m.FromID, id)
	if err != nil {
		r.log.Warn("cancel failed", logx.Err(err), logx.Int64("owner", m.FromID), logx.Int64("id", id))
		r.reply(ctx, m, "Couldn't cancel that reminder, try again later.")
		return
	}
	if !ok {
		r.reply(ctx, m, fmt.Sprintf("No reminder #%d of yours found.", id))
		return
	}
	r.reply(ctx, m, fmt.Sprintf("Reminder #%d cancelled.", id))
}

func (r *Router) handleHelp(ctx context.Context, m kit.Message) {
	r.reply(ctx, m, helpText)
}

func formatFireAt(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04") + " UTC"
}
