package bot

import (
	"fmt"

	tg "github.com/m3rciful/fingames/core/telegram"
	"github.com/m3rciful/fingames/core/telegram/commands"
	"github.com/m3rciful/fingames/core/telegram/middleware"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/workflow"
)

// Register wires commands, buttons and dialog steps into reg. Moderator
// commands only appear in the moderators' menu; the command router enforces
// AdminOnly.
func (h *Handlers) Register(reg *tg.Registry, sessions middleware.StateGetter) error {
	cmds := map[string]commands.Command{
		"/start":  {Handler: h.onStart, Description: "Записаться на игру"},
		"/my":     {Handler: h.onMy, Description: "Мои регистрации"},
		"/cancel": {Handler: h.onCancel, Description: "Отменить регистрацию"},
		"/help":   {Handler: h.onHelp, Description: "Помощь"},

		"/list":   {Handler: h.onList, Description: "Все регистрации", AdminOnly: true, Hidden: true},
		"/active": {Handler: h.onActive, Description: "Активные ID", AdminOnly: true, Hidden: true},
		"/redeem": {Handler: h.onRedeem, Description: "Отметить ID", AdminOnly: true, Hidden: true, Aliases: []string{"use"}},
		"/export": {Handler: h.onExport, Description: "Выгрузка CSV", AdminOnly: true, Hidden: true},
		"/stats":  {Handler: h.onStats, Description: "Заполненность слотов", AdminOnly: true, Hidden: true},
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return fmt.Errorf("register command: %w", err)
		}
	}

	onlyChoosingSlot := middleware.State(sessions, h.onStaleButton, workflow.StateChoosingSlot)
	if err := reg.RegisterCallback(cbSlot, onlyChoosingSlot(h.onSlot)); err != nil {
		return fmt.Errorf("register %s callback: %w", cbSlot, err)
	}
	if err := reg.RegisterCallback(cbCancel, h.onCancel); err != nil {
		return fmt.Errorf("register %s callback: %w", cbCancel, err)
	}

	state.RegisterHandler(workflow.StateChoosingGame, h.onText)
	state.RegisterHandler(workflow.StateChoosingSlot, h.onText)
	reg.SetTextFallback(h.onText)
	reg.SetCallbackNotFound(h.onStaleButton)
	return nil
}
