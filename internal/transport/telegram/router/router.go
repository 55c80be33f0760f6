// Package router turns incoming chat updates into replies: a few slash
// commands plus free text handed to task registration.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"remindbot/internal/task"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Registrar registers tasks from free text.
type Registrar interface {
	RegisterText(ctx context.Context, chatID int64, text string) ([]task.Record, error)
}

// TaskLister reads a chat's tasks for /tasks.
type TaskLister interface {
	ListByChat(ctx context.Context, chatID int64) ([]task.Record, error)
}

type Command struct {
	Name        string
	Description string
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // "" for free text
	Args    string
	ReqID   string
	Logger  logx.Logger

	// Set by handlers for the request log.
	Outcome    string
	Registered int
}

func (r *Request) commandLabel() string {
	if r.Command == "" {
		return "text"
	}
	return "/" + r.Command
}

func (r *Request) Text() string {
	if r.Update.Message == nil {
		return ""
	}
	return r.Update.Message.Text
}

type Config struct {
	// Workers bounds concurrently handled updates. 0 means 8.
	Workers int
	// Timeout bounds one update, NLU call included. 0 means 45s.
	Timeout time.Duration
	// Location renders timestamps in /tasks. nil means time.Local.
	Location *time.Location
}

type Router struct {
	cfg    Config
	sender kit.Sender
	reg    Registrar
	tasks  TaskLister
	log    logx.Logger

	commands []Command
	byName   map[string]Command
	text     HandlerFunc
}

func New(sender kit.Sender, reg Registrar, tasks TaskLister, cfg Config, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cfg:    cfg,
		sender: sender,
		reg:    reg,
		tasks:  tasks,
		log:    log.With(logx.String("comp", "router")),
		byName: map[string]Command{},
	}
	r.commands = []Command{
		{Name: "start", Description: "인사와 사용법", Handle: r.handleStart},
		{Name: "tasks", Description: "등록된 할 일 보기", Handle: r.handleTasks},
		{Name: "help", Description: "도움말", Handle: r.handleHelp},
	}
	for _, c := range r.commands {
		r.byName[c.Name] = c
	}
	r.text = r.handleText
	return r
}

// Commands returns the menu entries for the adapter's command list.
func (r *Router) Commands() []kit.BotCommand {
	return menuCommands(r.commands)
}

// Run handles updates until ctx ends or updates closes, then waits for
// in-flight handlers.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	defer func() { _ = g.Wait() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			g.Go(func() error {
				r.Handle(ctx, up)
				return nil
			})
		}
	}
}

// Handle routes one update. Errors are logged by the middleware chain.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	m := up.Message
	req := &Request{
		Update: up,
		Chat:   kit.ChatTarget{ChatID: m.ChatID},
		FromID: m.FromID,
		ReqID:  uuid.NewString()[:8],
	}
	req.Logger = r.log.With(logx.String("req_id", req.ReqID))

	h := r.text
	if name, args, ok := parseCommand(m.Text); ok {
		req.Command = name
		req.Args = args
		if c, found := r.byName[name]; found {
			h = c.Handle
		} else {
			h = r.handleUnknown
		}
	}
	h = chain(h,
		withRequestLog(),
		withRecover(),
		withDeadline(r.cfg.Timeout),
	)
	_ = h(ctx, req)
}

// parseCommand splits "/name@bot args" into its parts.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(head)
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

func (r *Router) reply(ctx context.Context, req *Request, text string) error {
	_, err := r.sender.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}
