package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

const (
	DefaultTimezone     = "Asia/Seoul"
	DefaultMorning      = "08:30"
	DefaultAfternoon    = "14:00"
	DefaultEvening      = "22:00"
	DefaultWorkers      = 4
	DefaultStoreTimeout = 5 * time.Second
	DefaultSendTimeout  = 10 * time.Second
	DefaultNLUTimeout   = 30 * time.Second
	DefaultOpenAIModel  = "gpt-4o-mini"
	DefaultGeminiModel  = "gemini-2.0-flash"
	DefaultDBPath       = "./remindbot.db"
)

// ApplyDefaults fills omitted fields. It never overrides explicit values.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		if strings.EqualFold(c.Storage.Driver, "file") {
			c.Storage.Path = "./remindbot_store"
		} else {
			c.Storage.Path = DefaultDBPath
		}
	}
	if strings.TrimSpace(c.Scheduler.Timezone) == "" {
		c.Scheduler.Timezone = DefaultTimezone
	}
	s := &c.Scheduler.Slots
	if strings.TrimSpace(s.Morning) == "" {
		s.Morning = DefaultMorning
	}
	if strings.TrimSpace(s.Afternoon) == "" {
		s.Afternoon = DefaultAfternoon
	}
	if strings.TrimSpace(s.Evening) == "" {
		s.Evening = DefaultEvening
	}
	if c.Dispatcher.Workers <= 0 {
		c.Dispatcher.Workers = DefaultWorkers
	}
	if strings.TrimSpace(c.NLU.Provider) == "" {
		c.NLU.Provider = "openai"
	}
	if strings.TrimSpace(c.NLU.Model) == "" {
		if c.HTTP.Pprof && strings.TrimSpace(c.HTTP.Token) == "" && !IsLoopbackAddr(c.HTTP.Addr) {
		errs = append(errs, fmt.Errorf("http.pprof on %q needs http.token or a loopback address", c.HTTP.Addr))
	}

	switch strings.ToLower(strings.TrimSpace(c.NLU.Provider)) {
		case "openai":
			c.NLU.Model = DefaultOpenAIModel
		case "gemini":
			c.NLU.Model = DefaultGeminiModel
		}
	}
}

// Validate checks values that would otherwise fail deep inside a component.
// All problems are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if c.Logging.Telegram.Enabled && c.Logging.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.chat_id is required when logging.telegram.enabled"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := time.LoadLocation(strings.TrimSpace(c.Scheduler.Timezone)); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	for name, v := range map[string]string{
		"scheduler.slots.morning":   c.Scheduler.Slots.Morning,
		"scheduler.slots.afternoon": c.Scheduler.Slots.Afternoon,
		"scheduler.slots.evening":   c.Scheduler.Slots.Evening,
	} {
		if _, err := time.Parse("15:04", strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: expected HH:MM, got %q", name, v))
		}
	}

	if _, err := ParseDurationField("dispatcher.store_timeout", c.Dispatcher.StoreTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("dispatcher.send_timeout", c.Dispatcher.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.NLU.Provider)) {
	case "openai", "gemini":
		if strings.TrimSpace(c.NLU.APIKey) == "" {
			errs = append(errs, fmt.Errorf("nlu.api_key is required for provider %q", c.NLU.Provider))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("nlu.provider: unknown provider %q", c.NLU.Provider))
	}
	if _, err := ParseDurationField("nlu.timeout", c.NLU.Timeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IsLoopbackAddr reports whether a host:port binds only to loopback.
// An empty host means all interfaces.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
