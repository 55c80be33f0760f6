package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/dispatcher"
	"remindbot/internal/nlu"
	"remindbot/internal/storage"
	"remindbot/internal/task"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/trigger"
	logx "remindbot/pkg/logx"
)

// StorageConfig maps the storage section. Config.Validate has already
// rejected unknown drivers.
func StorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func triggerConfig(cfg *config.Config) trigger.Config {
	return trigger.Config{
		Timezone: cfg.Scheduler.Timezone,
		Slots: map[task.CheckTime]string{
			task.Morning:   cfg.Scheduler.Slots.Morning,
			task.Afternoon: cfg.Scheduler.Slots.Afternoon,
			task.Evening:   cfg.Scheduler.Slots.Evening,
		},
	}
}

func dispatcherConfig(cfg *config.Config, loc *time.Location) (dispatcher.Config, error) {
	st, err := config.ParseDurationOrDefault("dispatcher.store_timeout", cfg.Dispatcher.StoreTimeout, config.DefaultStoreTimeout)
	if err != nil {
		return dispatcher.Config{}, err
	}
	sd, err := config.ParseDurationOrDefault("dispatcher.send_timeout", cfg.Dispatcher.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		return dispatcher.Config{}, err
	}
	return dispatcher.Config{
		Workers:      cfg.Dispatcher.Workers,
		StoreTimeout: st,
		SendTimeout:  sd,
		Location:     loc,
	}, nil
}

func nluConfig(cfg *config.Config) (nlu.Config, error) {
	to, err := config.ParseDurationOrDefault("nlu.timeout", cfg.NLU.Timeout, config.DefaultNLUTimeout)
	if err != nil {
		return nlu.Config{}, err
	}
	return nlu.Config{
		Provider: strings.ToLower(strings.TrimSpace(cfg.NLU.Provider)),
		Model:    cfg.NLU.Model,
		APIKey:   cfg.NLU.APIKey,
		BaseURL:  cfg.NLU.BaseURL,
		Timeout:  to,
	}, nil
}

func adapterConfig(cfg *config.Config) (telegram.Config, error) {
	pt, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	sd, err := config.ParseDurationOrDefault("dispatcher.send_timeout", cfg.Dispatcher.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pt,
		SendTimeout: sd,
		RatePerSec:  float64(cfg.Telegram.RatePerSec),
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}
