package state

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/fingames/core/logger"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

var (
	fsmMu       sync.RWMutex
	fsmHandlers = map[State]tele.HandlerFunc{}
)

// RegisterHandler associates a state with its handler.
func RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	fsmMu.Lock()
	defer fsmMu.Unlock()
	fsmHandlers[st] = h
}

func handlerFor(st State) (tele.HandlerFunc, bool) {
	fsmMu.RLock()
	defer fsmMu.RUnlock()
	h, ok := fsmHandlers[st]
	return h, ok
}

// dispatch runs the handler registered for the sender's current state, if any.
func dispatch(mgr Manager, c tele.Context) error {
	userID := c.Sender().ID
	current := mgr.GetState(userID)
	ctx := tghelpers.BuildContext(c)

	handler, ok := handlerFor(current)
	status := "ok"
	if !ok {
		status = "skip"
	}
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", status),
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
	)
	if !ok {
		return nil
	}
	return handler(c)
}
