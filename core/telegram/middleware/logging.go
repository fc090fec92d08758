package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// updateSet remembers recently logged update IDs for a short window.
type updateSet struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	keepFor time.Duration
}

func (s *updateSet) firstSeen(updateID int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ts := range s.seen {
		if now.Sub(ts) > s.keepFor {
			delete(s.seen, id)
		}
	}
	if _, ok := s.seen[updateID]; ok {
		return false
	}
	s.seen[updateID] = now
	return true
}

var received = &updateSet{seen: make(map[int]time.Time), keepFor: 10 * time.Second}

// updateKind classifies an update for the receipt log line.
func updateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && strings.HasPrefix(upd.Message.Text, "/"):
		return "command"
	case upd.Message != nil:
		return "text"
	default:
		return "other"
	}
}

// LoggerMiddleware logs a single receipt line per update and sets rid.
// Receipts are deduplicated by update_id because the middleware may wrap
// several branches of the same update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()
		ctx := tghelpers.NewRequestContext(c)

		if !logger.ShouldSampleDebug() || !received.firstSeen(upd.ID, time.Now()) {
			return next(c)
		}

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("rid", logger.RIDFrom(ctx)),
			slog.Int("update_id", upd.ID),
			slog.String("kind", updateKind(c)),
		}
		if chat != nil {
			attrs = append(attrs,
				slog.Int64("chat_id", chat.ID),
				slog.String("chat_type", string(chat.Type)),
			)
		}
		if user != nil {
			attrs = append(attrs, slog.Int64("user_id", user.ID))
			if user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			if user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
		}

		switch {
		case upd.Callback != nil:
			key, payload := callbacks.ParseCallbackData(upd.Callback)
			if key != "" {
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
			}
			if payload != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
			}
		case upd.Message != nil:
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}
