package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/fingames/core/telegram"
	"github.com/m3rciful/fingames/core/telegram/callbacks"
	"github.com/m3rciful/fingames/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound answers buttons whose key has no handler and the registry
	// has no fallback of its own, typically buttons left over from an
	// older release.
	NotFound tele.HandlerFunc
}

// CallbackRoute routes button presses to the handler registered for the
// key in their data. The spinner is cleared before the handler runs.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		key, payload := callbacks.ParseCallbackData(c.Callback())
		_ = c.Respond()

		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{
			slog.String("cb_key", key),
			slog.Int("payload_len", len(payload)),
		}
		h, found := resolveCallback(reg, opts, key)
		outcome := ""
		if !found {
			outcome = "not_found"
		}
		return handleWithSummary(c, name, start, "", outcome, func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}

// resolveCallback returns the handler for key, or the not-found fallback
// with found=false. The fallback may be nil.
func resolveCallback(reg *tg.Registry, opts CallbackOptions, key string) (h tele.HandlerFunc, found bool) {
	if reg != nil {
		if h, ok := reg.GetCallback(key); ok && h != nil {
			return h, true
		}
		if fb := reg.CallbackNotFound(); fb != nil {
			return fb, false
		}
	}
	return opts.NotFound, false
}
