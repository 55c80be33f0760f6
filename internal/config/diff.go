package config

import (
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs, with
// log fields describing the new values. Secrets are only reported as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	trim := strings.TrimSpace

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || trim(o.PollTimeout) != trim(n.PollTimeout) || o.RatePerSec != n.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.String("telegram.poll_timeout", trim(n.PollTimeout)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.morning", newCfg.Scheduler.Slots.Morning),
			logx.String("scheduler.afternoon", newCfg.Scheduler.Slots.Afternoon),
			logx.String("scheduler.evening", newCfg.Scheduler.Slots.Evening),
		)
	}

	if oldCfg.Dispatcher != newCfg.Dispatcher {
		changed = append(changed, "dispatcher")
		attrs = append(attrs, logx.Int("dispatcher.workers", newCfg.Dispatcher.Workers))
	}

	on, nn := oldCfg.NLU, newCfg.NLU
	if on != nn {
		changed = append(changed, "nlu")
		attrs = append(attrs,
			logx.String("nlu.provider", nn.Provider),
			logx.String("nlu.model", nn.Model),
			logx.Bool("nlu.api_key_set", trim(nn.APIKey) != ""),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", trim(newCfg.HTTP.Token) != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	return changed, attrs
}

// OnlyLogging reports whether every changed section can be applied live.
func OnlyLogging(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return false
		}
	}
	return true
}
