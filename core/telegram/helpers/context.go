package helpers

import (
	"context"

	"github.com/m3rciful/fingames/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	requestCtxKey = "request_ctx"
	ridKey        = "rid"
)

// StoreContext keeps ctx on the update so later helpers log with the same
// request metadata.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(requestCtxKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(requestCtxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// updateIDs returns the update, chat and sender IDs; missing parts are zero.
func updateIDs(c tele.Context) (updateID int, chatID, userID int64) {
	updateID = c.Update().ID
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return updateID, chatID, userID
}

// NewRequestContext derives the request ID for the update, records it on c
// and stores a context carrying it along with the update metadata and the
// Telegram component logger.
func NewRequestContext(c tele.Context) context.Context {
	updateID, chatID, userID := updateIDs(c)
	rid := logger.BuildRID(updateID, chatID, userID)
	c.Set(ridKey, rid)

	ctx := logger.WithRID(logger.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// BuildContext returns the request context of the update, creating it when
// no middleware did.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	return NewRequestContext(c)
}

// WithHandler tags the request context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
