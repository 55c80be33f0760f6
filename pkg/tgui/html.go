package tgui

import (
	"html"
	"strings"
)

// H is text already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes user text such as task names.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name string, s string) H {
	return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">")
}

// B renders bold text (titles, keys).
func B(s string) H { return tag("b", s) }

// I renders italic text (slot names).
func I(s string) H { return tag("i", s) }

// Code renders monospace text (task ids).
func Code(s string) H { return tag("code", s) }

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	var sb strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return H(sb.String())
}
