package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

// Outcomes recorded on a Request for the request log.
const (
	outcomeGreeted    = "greeted"
	outcomeHelp       = "help"
	outcomeListed     = "listed"
	outcomeRegistered = "registered"
	outcomeChat       = "chat"
	outcomeNotParsed  = "not_parsed"
	outcomeRejected   = "rejected"
	outcomeNLUOff     = "nlu_off"
	outcomeStoreError = "store_error"
	outcomeUnknownCmd = "unknown_command"
)

type middleware func(next HandlerFunc) HandlerFunc

func chain(h HandlerFunc, mws ...middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// withDeadline bounds one update, the NLU round trip included.
func withDeadline(d time.Duration) middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// withRecover turns a handler panic into an error so one bad message
// cannot take down the update loop.
func withRecover() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if p := recover(); p != nil {
					req.Logger.Error("chat handler panicked",
						logx.String("cmd", req.commandLabel()),
						logx.Any("panic", p),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic in %s: %v", req.commandLabel(), p)
				}
			}()
			return next(ctx, req)
		}
	}
}

// withRequestLog writes one line per update with what it led to.
// Registrations and failures are INFO/WARN, everything else DEBUG.
func withRequestLog() middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)

			fields := []logx.Field{
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.commandLabel()),
				logx.String("outcome", req.Outcome),
				logx.Duration("dur", time.Since(start)),
			}
			if req.Registered > 0 {
				fields = append(fields, logx.Int("records", req.Registered))
			}
			switch {
			case err != nil:
				req.Logger.Warn("chat request failed", append(fields, logx.Err(err))...)
			case req.Outcome == outcomeRegistered:
				req.Logger.Info("task registered from chat", fields...)
			default:
				req.Logger.Debug("chat request", fields...)
			}
			return err
		}
	}
}
