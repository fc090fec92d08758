// Package commands describes bot commands shared by the registry and routers.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a registered bot command. AdminOnly commands are wrapped in the
// moderator allow-list check; Hidden ones are left out of the client menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are extra names with or without the leading slash.
	Aliases []string
}

// Public reports whether the command belongs in the menu shown to everyone.
func (c Command) Public() bool {
	return !c.Hidden && !c.AdminOnly
}

// HasAlias reports whether name ("/use" or "use") is one of the aliases.
func (c Command) HasAlias(name string) bool {
	name = strings.TrimPrefix(name, "/")
	for _, alias := range c.Aliases {
		if strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}
