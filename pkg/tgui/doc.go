// Package tgui renders Telegram HTML replies for the chat commands.
package tgui
