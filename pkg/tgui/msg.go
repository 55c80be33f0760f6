package tgui

import (
	"context"
	"strings"

	kit "remindbot/internal/transport"
)

// Message is a rendered HTML reply.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send delivers the message through s.
func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	opt := m.Opt
	if opt == nil {
		opt = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return s.SendText(ctx, to, m.Text, opt)
}

// Builder assembles an HTML reply line by line. Plain strings are escaped;
// RawLine takes pre-rendered H.
type Builder struct {
	lines []string
}

func New() *Builder { return &Builder{} }

// Title adds a bold title, prefixed by emoji when given.
func (b *Builder) Title(emoji, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	line := B(title).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// Bullets adds "• item" lines, skipping blank items.
func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.Line("• " + it)
		}
	}
	return b
}

// KV adds a "• key: value" row with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	if key = strings.TrimSpace(key); key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

func (b *Builder) Build() Message {
	return Message{
		Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"),
		Opt:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	}
}
