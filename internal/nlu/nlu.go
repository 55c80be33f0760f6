// Package nlu classifies chat text with a language model and extracts task
// intents from it.
package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/task"
	logx "remindbot/pkg/logx"
)

type Kind string

const (
	KindRegisterTask Kind = "register_task"
	KindChat         Kind = "chat"
)

// Result is either a registration (Intent set) or plain chat (Intent nil).
type Result struct {
	Kind   Kind
	Intent *task.Intent
}

// Parser is the NLU collaborator.
type Parser interface {
	ParseIntent(ctx context.Context, raw string) (Result, error)
}

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("nlu: could not parse intent")
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("nlu: no provider configured")
)

// ParseError covers transport failures and any response that is not exactly
// the expected JSON object. There is no partial recovery.
type ParseError struct {
	Provider string
	Raw      string // model output, empty on transport errors
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nlu %s: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

type Config struct {
	Provider string // "openai" | "gemini" | "none"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New builds the configured provider. "none" returns (nil, nil).
func New(ctx context.Context, cfg Config, log logx.Logger) (Parser, error) {
	log = log.With(logx.String("comp", "nlu"))
	var (
		p   Parser
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "none", "":
		return nil, nil
	case "openai":
		p = newOpenAI(cfg, log)
	case "gemini":
		p, err = newGemini(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown nlu provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		p = withTimeout{Parser: p, d: cfg.Timeout}
	}
	return p, nil
}

type withTimeout struct {
	Parser
	d time.Duration
}

func (w withTimeout) ParseIntent(ctx context.Context, raw string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.d)
	defer cancel()
	return w.Parser.ParseIntent(ctx, raw)
}
