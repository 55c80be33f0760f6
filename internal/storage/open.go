package storage

import (
	"fmt"
	"strings"

	logx "remindbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage.path is required")
	}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "file":
		return openFile(cfg, log)
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
