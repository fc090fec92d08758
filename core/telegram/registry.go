package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRegistration rejects an empty name, a missing handler or a
	// command without description or leading slash.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicateRegistration rejects a second handler for the same name.
	ErrDuplicateRegistration = errors.New("telegram: already registered")
)

// Registry holds bot commands, button callbacks and the fallbacks for
// updates nothing else claims.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown buttons are answered with
// a short "outdated button" toast until SetCallbackNotFound replaces it.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Кнопка устарела"})
		},
	}
}

func registrationFailed(event, name string, err error) error {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, event,
		slog.String("name", name),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("%s: %w", name, err)
}

// RegisterCommand adds a command under name, which must start with "/".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "" {
		return registrationFailed("register.command.skip", name, ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return registrationFailed("register.command.duplicate", name, ErrDuplicateRegistration)
	}
	r.commands[name] = cmd
	return nil
}

// RegisterCallback maps a button key to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return registrationFailed("register.callback.skip", key, ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return registrationFailed("register.callback.duplicate", key, ErrDuplicateRegistration)
	}
	r.callbacks[key] = handler
	return nil
}

// Menu lists the commands for the Telegram command menu sorted by name.
// The public menu holds Public commands; the moderator menu adds the
// AdminOnly ones.
func (r *Registry) Menu(moderator bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Public() || (moderator && cmd.AdminOnly) {
			list = append(list, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves a typed command or alias to its canonical name.
// Arguments and a trailing @botname mention are ignored.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", commands.Command{}, false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		if cmd.HasAlias(name) {
			return key, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for name, cmd := range r.commands {
		out[name] = cmd
	}
	return out
}

// GetCallback returns the handler for a button key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered button keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown button keys; nil is
// ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown button keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no command or flow step claims.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the text fallback handler.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands publishes the public menu for everyone and the moderator
// menu to each moderator's private chat. Failures are logged; the bot keeps
// running with whatever menu Telegram had before.
func InitBotCommands(bot commandSetter, reg *Registry, moderators []int64) {
	set := func(scope tele.CommandScope, cmds []tele.Command) {
		if err := bot.SetCommands(cmds, scope); err != nil {
			logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
				slog.String("scope", string(scope.Type)),
				slog.Int64("chat_id", scope.ChatID),
				slog.String("err", err.Error()),
			)
		}
	}
	set(tele.CommandScope{Type: tele.CommandScopeDefault}, reg.Menu(false))
	if len(moderators) == 0 {
		return
	}
	menu := reg.Menu(true)
	for _, id := range moderators {
		set(tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}, menu)
	}
}
