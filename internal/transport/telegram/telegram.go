package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot long-polling to the transport.Adapter surface.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Message)
	runMu   sync.Mutex
	running bool
	done    chan struct{}

	// droppedUpdates counts messages dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.forward(kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		})
		return nil
	})
}

func (a *Adapter) forward(m kit.Message) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Message)
	if out == nil {
		return
	}
	select {
	case out <- m:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.done = make(chan struct{})
	done := a.done
	a.runMu.Unlock()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming messages dropped (channel full)", logx.Int("chan_cap", cap(out)), logx.Any("count", n))
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()

	go func() {
		a.log.Info("polling started")
		// Start blocks until Stop() is called.
		a.bot.Start()
		a.log.Info("polling stopped")
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	done := a.done
	a.done = nil
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if done != nil {
		close(done)
	}
	// telebot Stop is expected to be fast; run it async just in case the
	// long-poll is mid-request.
	go a.bot.Stop()
	return nil
}

const telegramTextLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		default:
		}
	}

	if len([]rune(text)) > telegramTextLimit {
		text = string([]rune(text)[:telegramTextLimit])
	}

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}
