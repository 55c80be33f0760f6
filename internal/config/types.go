package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
// Secrets can also come from the environment, see env.go.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	NLU        NLUConfig        `json:"nlu"`
	HTTP       HTTPConfig       `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing messages across all chats.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the task store.
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig holds the three daily check-points and their time zone.
type SchedulerConfig struct {
	Timezone string    `json:"timezone,omitempty"`
	Slots    SlotTimes `json:"slots"`
}

// SlotTimes are "HH:MM" wall-clock times.
type SlotTimes struct {
	Morning   string `json:"morning,omitempty"`
	Afternoon string `json:"afternoon,omitempty"`
	Evening   string `json:"evening,omitempty"`
}

type DispatcherConfig struct {
	Workers      int    `json:"workers,omitempty"`
	StoreTimeout string `json:"store_timeout,omitempty"`
	SendTimeout  string `json:"send_timeout,omitempty"`
}

// NLUConfig selects the language model that turns chat text into task intents.
// Provider is "openai", "gemini" or "none".
type NLUConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// HTTPConfig controls the ops HTTP server. Empty Addr disables it.
//
// Token, when set, is required on the manual fire endpoint and on
// /debug/pprof. Pprof is refused on a non-loopback address without a token.
type HTTPConfig struct {
	Addr  string `json:"addr,omitempty"`
	Token string `json:"token,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
}
