package router

import (
	"strings"
	"unicode"

	kit "remindbot/internal/transport"
)

// sanitizeTelegramCommand converts an arbitrary route/alias into a Telegram-safe bot command name.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r == '_' {
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// Common separators become underscores.
		if r == '-' || unicode.IsSpace(r) || r == '/' {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// drop anything else
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients generally expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// menuCommands turns the route table into Telegram menu entries, in
// registration order.
func menuCommands(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
