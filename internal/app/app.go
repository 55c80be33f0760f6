package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/dispatcher"
	"remindbot/internal/eventbus"
	"remindbot/internal/httpapi"
	"remindbot/internal/nlu"
	"remindbot/internal/registration"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/systemd"
)

// Transport is the chat platform: incoming updates plus reminder delivery.
type Transport interface {
	kit.Adapter
	dispatcher.Sender
}

type Option func(*options)

type options struct {
	transport Transport
	environ   map[string]string
}

// WithTransport replaces the Telegram adapter.
func WithTransport(t Transport) Option { return func(o *options) { o.transport = t } }

// WithEnviron replaces the process environment for the config overlay.
func WithEnviron(env map[string]string) Option { return func(o *options) { o.environ = env } }

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	transport Transport
	trig      *trigger.Service
	disp      *dispatcher.Service
	reg       *registration.Service
	router    *router.Router
	http      *httpapi.Server

	updates chan kit.Update
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.environ != nil {
		cfgm.SetEnviron(o.environ)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The Telegram log sink needs the adapter, which needs a logger: boot with
	// the sink off, attach the sender, then apply the real config.
	bootCfg := logConfig(cfg)
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		updates: make(chan kit.Update, 256),
	}
	ok := false
	defer func() {
		if !ok {
			a.closeEarly()
		}
	}()

	a.transport = o.transport
	if a.transport == nil {
		acfg, err := adapterConfig(cfg)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(acfg, log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.transport = ad
	}
	logSvc.SetSender(a.transport)
	logSvc.Apply(logConfig(cfg))

	sc, err := StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a.trig, err = trigger.New(triggerConfig(cfg), log)
	if err != nil {
		return nil, err
	}

	dcfg, err := dispatcherConfig(cfg, a.trig.Location())
	if err != nil {
		return nil, err
	}
	a.disp = dispatcher.New(a.store, a.transport, a.bus, dcfg, log)

	ncfg, err := nluConfig(cfg)
	if err != nil {
		return nil, err
	}
	parser, err := nlu.New(context.Background(), ncfg, log)
	if err != nil {
		return nil, err
	}
	if parser == nil {
		a.log.Warn("nlu disabled; free-text registration is off")
	}
	a.reg = registration.New(a.store, parser, a.bus, log)
	a.router = router.New(a.transport, a.reg, a.store, router.Config{
		Timeout:  ncfg.Timeout + 15*time.Second,
		Location: a.trig.Location(),
	}, log)

	if addr := strings.TrimSpace(cfg.HTTP.Addr); addr != "" {
		hopts := []httpapi.Option{httpapi.WithToken(cfg.HTTP.Token)}
		if cfg.HTTP.Pprof {
			hopts = append(hopts, httpapi.WithPprof())
		}
		a.http = httpapi.New(addr, httpapi.Deps{
			Schedule:   a.trig,
			Tasks:      a.store,
			Supervisor: func() *supervisor.Supervisor { return a.sup },
			Dropped:    a.droppedEvents,
		}, log, hopts...)
	}

	ok = true
	return a, nil
}

func (a *App) closeEarly() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func (a *App) droppedEvents() uint64 {
	if st, ok := a.bus.(eventbus.Stats); ok {
		return st.Dropped()
	}
	return 0
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// DispatchNow runs one batch for slot synchronously. The app does not need
// to be started.
func (a *App) DispatchNow(ctx context.Context, slot task.CheckTime) (dispatcher.Report, error) {
	return a.disp.Dispatch(ctx, trigger.SlotFired{Slot: slot, At: time.Now().In(a.trig.Location()), Manual: true})
}

// Close releases an app that was never started.
func (a *App) Close() error {
	a.closeEarly()
	return nil
}

// Fire triggers a slot now, as if the clock had reached it.
func (a *App) Fire(ctx context.Context, slot task.CheckTime) error {
	return a.trig.Fire(ctx, slot)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.transport.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if mu, ok := a.transport.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("telegram.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.router.Commands()); err != nil {
				a.log.Warn("menu commands not updated", logx.Err(err))
			}
		})
	}

	if err := a.trig.Start(a.sup.Context()); err != nil {
		return err
	}
	a.sup.Go("dispatcher", func(c context.Context) error {
		return a.disp.Run(c, a.trig.Events())
	})
	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		applied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				applied = a.applyConfig(applied, next)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.http != nil {
		srv := a.http
		a.sup.Go("http", func(c context.Context) error {
			return srv.ListenAndServe()
		})
	}

	a.sup.Go("systemd.watchdog", systemd.Watchdog)
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify READY sent")
	}

	snap := a.trig.Snapshot()
	fields := []logx.Field{logx.String("tz", snap.Timezone)}
	for _, s := range snap.Slots {
		fields = append(fields, logx.Time("next_"+string(s.Slot), s.Next))
	}
	a.log.Info("app started", fields...)
	return nil
}

// applyConfig applies what can change live (logging) and returns the config
// now in effect.
func (a *App) applyConfig(prev, next *config.Config) *config.Config {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return next
	}
	a.logs.Apply(logConfig(next))
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	if !config.OnlyLogging(changed) {
		a.log.Warn("config changed outside logging; restart required for it to take effect", fields...)
		return next
	}
	a.log.Info("config reloaded", fields...)
	return next
}

func (a *App) logEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.ReminderFailed:
		if f, ok := e.Data.(dispatcher.Failed); ok {
			a.log.Debug("event", logx.String("type", e.Type), logx.String("task_id", f.TaskID), logx.String("err", f.Err))
			return
		}
	case eventbus.TaskRegistered:
		if r, ok := e.Data.(registration.Registered); ok {
			a.log.Debug("event", logx.String("type", e.Type), logx.Int64("chat_id", r.ChatID), logx.Int("records", len(r.Records)))
			return
		}
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// Cancel first so loops start unwinding; the dispatcher finishes records
	// already in flight and abandons the rest of its batch.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("trigger", 2*time.Second, func(c context.Context) error { a.trig.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error {
		if a.http == nil {
			return nil
		}
		return a.http.Shutdown(c)
	})
	// Dispatcher and router drain here; sends still need the transport.
	step("supervisor", 15*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("transport", 2*time.Second, func(c context.Context) error { return a.transport.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
