// Package httpapi serves read-only operational endpoints: health, the slot
// schedule and a chat's tasks. It also exposes a manual slot trigger.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/task"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

type ScheduleSource interface {
	Snapshot() trigger.Snapshot
	Fire(ctx context.Context, slot task.CheckTime) error
}

type TaskLister interface {
	ListByChat(ctx context.Context, chatID int64) ([]task.Record, error)
}

type Deps struct {
	Schedule ScheduleSource
	Tasks    TaskLister
	// Supervisor is optional; when set /healthz reports its goroutines.
	Supervisor func() *supervisor.Supervisor
	// Dropped is optional; observability events lost by the bus.
	Dropped func() uint64
}

type Option func(*Server)

// WithToken requires a bearer token (or ?token=) on mutating and debug routes.
func WithToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// WithPprof mounts net/http/pprof under /debug.
func WithPprof() Option { return func(s *Server) { s.pprof = true } }

type Server struct {
	deps    Deps
	token   string
	pprof   bool
	log     logx.Logger
	router  *chi.Mux
	srv     *http.Server
	started time.Time
}

func New(addr string, deps Deps, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{deps: deps, log: log.With(logx.String("comp", "http")), started: time.Now()}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/schedule", s.schedule)
		r.With(s.requireToken).Post("/slots/{slot}/fire", s.fire)
		r.Get("/chats/{chatID}/tasks", s.chatTasks)
	})
	if s.pprof {
		r.With(s.requireToken).Mount("/debug", middleware.Profiler())
	}
	s.router = r
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("http listening", logx.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("dur", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type healthResp struct {
	Status        string                      `json:"status"`
	Uptime        string                      `json:"uptime"`
	DroppedEvents uint64                      `json:"dropped_events"`
	Goroutines    []supervisor.GoroutineStats `json:"goroutines,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResp{Status: "ok", Uptime: time.Since(s.started).Truncate(time.Second).String()}
	if s.deps.Dropped != nil {
		resp.DroppedEvents = s.deps.Dropped()
	}
	if s.deps.Supervisor != nil {
		if sup := s.deps.Supervisor(); sup != nil {
			resp.Goroutines = sup.Snapshot()
			if sup.Err() != nil {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) schedule(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Schedule == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Schedule.Snapshot())
}

func (s *Server) fire(w http.ResponseWriter, r *http.Request) {
	if s.deps.Schedule == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	slot, err := task.ParseCheckTime(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.deps.Schedule.Fire(ctx, slot); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.log.Info("slot fired manually", logx.String("slot", string(slot)))
	writeJSON(w, http.StatusAccepted, map[string]string{"slot": string(slot)})
}

func (s *Server) chatTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "chat id must be an integer")
		return
	}
	recs, err := s.deps.Tasks.ListByChat(r.Context(), chatID)
	if err != nil {
		s.log.Warn("list tasks failed", logx.Int64("chat_id", chatID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	if recs == nil {
		recs = []task.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}
