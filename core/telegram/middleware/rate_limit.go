package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/fingames/core/logger"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// rateLimitKind classifies an update for rate limit exclusions; the values
// match the ones accepted in rate_limit.exclude_updates.
func rateLimitKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	default:
		return "other"
	}
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu        sync.Mutex
		lastSeen  = make(map[int64]time.Time)
		lastPrune time.Time
	)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pruneEvery := 100 * opts.Interval
	if pruneEvery < time.Minute {
		pruneEvery = time.Minute
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[rateLimitKind(c)]; skip {
				return next(c)
			}

			ts := now()

			mu.Lock()
			if ts.Sub(lastPrune) > pruneEvery {
				for id, seen := range lastSeen {
					if ts.Sub(seen) >= opts.Interval {
						delete(lastSeen, id)
					}
				}
				lastPrune = ts
			}
			if last, ok := lastSeen[user.ID]; ok && ts.Sub(last) < opts.Interval {
				mu.Unlock()
				ctx := tghelpers.BuildContext(c)
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "rate limit",
					slog.String("event", "tg.rate_limit"),
					slog.Int64("user_id", user.ID),
					slog.String("kind", rateLimitKind(c)),
					slog.String("rid", logger.RIDFrom(ctx)),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = ts
			mu.Unlock()
			return next(c)
		}
	}
}
