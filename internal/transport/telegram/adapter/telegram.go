package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendTimeout bounds one Bot API call made for an outgoing message,
	// the HTTP round trip included. 0 means 10s.
	SendTimeout time.Duration
	// APIURL overrides the Bot API endpoint. Empty means Telegram's.
	APIURL string
	// RatePerSec caps outgoing messages across all chats. 0 means 20/s.
	RatePerSec float64
	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger

	// bot long-polls updates; sender makes outgoing calls on a client
	// bounded by SendTimeout, since telebot calls take no context.
	bot     *tele.Bot
	sender  *tele.Bot
	limiter *rate.Limiter
	out     atomic.Value // chan<- kit.Update

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Client:  &http.Client{Timeout: timeout + 10*time.Second},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	// The poller already verified the token; no second getMe.
	sender, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.SendTimeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "telegram")),
		bot:     b,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the poller's supervisor, nil when stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the current output channel; Start may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		msg := &kit.Message{
			ID:      m.ID,
			ChatID:  m.Chat.ID,
			Text:    m.Text,
			IsGroup: m.Chat.Type != tele.ChatPrivate,
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: msg})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// A broken poller must not take the reminder loop down with it.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; it can also return on its own, so
	// keep it under a restart loop.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()
	go a.bot.Stop()

	// Long-poll may still be waiting on getUpdates; don't hold shutdown for it.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

const telegramTextLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that leave chunks at least a third of the limit.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitText(text, telegramTextLimit) {
		if err := a.limiter.Wait(ctx); err != nil {
			return first, err
		}
		msg, err := a.sender.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendNotification delivers a reminder to a chat.
func (a *Adapter) SendNotification(ctx context.Context, chatID int64, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// UpdateMenuCommands publishes the command menu (setMyCommands), skipping
// the call when the list is unchanged.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(d))
		h.Write([]byte{0})
		list = append(list, tele.Command{Text: c.Command, Description: d})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.sender.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
