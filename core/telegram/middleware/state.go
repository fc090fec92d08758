package middleware

import (
	"log/slog"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/core/telegram/state"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// StateGetter is the minimal interface required from an FSM manager.
type StateGetter interface {
	GetState(userID int64) state.State
}

// State returns a middleware that only lets the update through when the
// sender is in one of the expected FSM states. Otherwise the update is dropped
// and onSkip, when set, is invoked instead.
func State(mgr StateGetter, onSkip tele.HandlerFunc, expected ...state.State) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil {
				return nil
			}
			userID := c.Sender().ID
			current := mgr.GetState(userID)
			ctx := tghelpers.BuildContext(c)
			for _, want := range expected {
				if current == want {
					logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.match",
						slog.Int64("user_id", userID),
						slog.String("state", string(current)),
						slog.String("rid", logger.RIDFrom(ctx)),
					)
					return next(c)
				}
			}
			logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.skip",
				slog.Int64("user_id", userID),
				slog.String("state", string(current)),
				slog.Int("expected", len(expected)),
				slog.String("rid", logger.RIDFrom(ctx)),
			)
			if onSkip != nil {
				return onSkip(c)
			}
			return nil
		}
	}
}
