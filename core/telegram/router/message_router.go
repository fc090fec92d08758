package router

import (
	"time"

	tg "github.com/m3rciful/fingames/core/telegram"
	"github.com/m3rciful/fingames/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Flow is the part of a session manager the text router needs.
type Flow interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallbacks for updates no flow step claims.
type TextOptions struct {
	// UnknownText answers text when the registry has no text fallback.
	UnknownText tele.HandlerFunc
	// Media answers photos, documents, stickers and other non-text messages.
	Media tele.HandlerFunc
}

// TextRoutes builds the text and media routes. Text goes to the active
// flow step first, then to a command typed without its endpoint (an alias
// or "/cmd@bot"), then to the fallbacks.
func TextRoutes(flow Flow, reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		start := time.Now()
		if inFlow(flow, c) {
			return handleWithSummary(c, "flow", start, "", "", func() error {
				return flow.ManagerHandler(c)
			})
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}
		fallback := opts.UnknownText
		if reg != nil && reg.TextFallback() != nil {
			fallback = reg.TextFallback()
		}
		if fallback == nil {
			logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "fallback", start, "", "", func() error {
			return fallback(c)
		})
	}

	media := func(c tele.Context) error {
		start := time.Now()
		if opts.Media == nil {
			logHandlerSummary(c, "media", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "media", start, "", "", func() error {
			return opts.Media(c)
		})
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(text))},
		{Endpoint: tele.OnMedia, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(media))},
	}
}

func inFlow(flow Flow, c tele.Context) bool {
	if flow == nil || c.Sender() == nil {
		return false
	}
	return flow.InProgress(c.Sender().ID)
}
