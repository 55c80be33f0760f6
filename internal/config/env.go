package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverlay lists the variables that may override file values.
type envOverlay struct {
	BotToken  string `env:"BOT_TOKEN"`
	OpenAIKey string `env:"OPENAI_API_KEY"`
	GeminiKey string `env:"GEMINI_API_KEY"`
	DBPath    string `env:"REMINDBOT_DB_PATH"`
	Timezone  string `env:"REMINDBOT_TZ"`
	HTTPToken string `env:"REMINDBOT_HTTP_TOKEN"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
// environ nil means the process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var ov envOverlay
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return fmt.Errorf("env: %w", err)
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, ov.BotToken)
	set(&cfg.Storage.Path, ov.DBPath)
	set(&cfg.Scheduler.Timezone, ov.Timezone)
	set(&cfg.HTTP.Token, ov.HTTPToken)

	switch strings.ToLower(strings.TrimSpace(cfg.NLU.Provider)) {
	case "", "openai":
		set(&cfg.NLU.APIKey, ov.OpenAIKey)
	case "gemini":
		set(&cfg.NLU.APIKey, ov.GeminiKey)
	}
	return nil
}
