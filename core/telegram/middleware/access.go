package middleware

import (
	"log/slog"

	"github.com/m3rciful/fingames/core/logger"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Allowlist answers whether a Telegram user may run privileged commands.
type Allowlist interface {
	Contains(userID int64) bool
}

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	Admins   Allowlist
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allowed(c tele.Context) bool {
	if o.Admins == nil || c.Sender() == nil {
		return false
	}
	return o.Admins.Contains(c.Sender().ID)
}

// AdminOnlyMiddleware ensures that only allow-listed users can invoke downstream
// handlers. Everyone else is rejected through OnReject, or ignored silently when
// no reject handler is configured.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.allowed(c) {
				ctx := tghelpers.BuildContext(c)
				var userID int64
				if c.Sender() != nil {
					userID = c.Sender().ID
				}
				logger.TG.LogAttrs(ctx, slog.LevelDebug, "access.denied",
					slog.Int64("user_id", userID),
					slog.String("rid", logger.RIDFrom(ctx)),
				)
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
