package bot

import (
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/fingames/core/telegram/callbacks"
	"github.com/m3rciful/fingames/core/telegram/keyboard"
	"github.com/m3rciful/fingames/internal/catalog"
)

// Callback uniques.
const (
	cbSlot   = "slot"
	cbCancel = "cancel"

	payloadSep = "|"
)

const slotsPerRow = 2

func gamesKeyboard(games []catalog.Game) *tele.ReplyMarkup {
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		rows = append(rows, []string{g.Label()})
	}
	return keyboard.ReplyButtons(rows...)
}

// slotsKeyboard offers the slots of one game. Each button carries the game's
// catalog position so a press on an older offer can be told apart.
func slotsKeyboard(cat *catalog.Catalog, game catalog.Game, slots []catalog.Slot) *tele.ReplyMarkup {
	gamePos := strconv.Itoa(gameIndex(cat, game.Name))
	buttons := make([]keyboard.InlineBtn, 0, len(slots))
	for _, s := range slots {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   s.String(),
			Unique: cbSlot,
			Data:   gamePos + payloadSep + s.Date + payloadSep + s.Time,
		})
	}
	markup := keyboard.InlineButtonsNPerRow(buttons, slotsPerRow)
	cancel := keyboard.CancelButton(markup, cbCancel, "", textCancelButton)
	markup.InlineKeyboard = append(markup.InlineKeyboard, []tele.InlineButton{*cancel.Inline()})
	return markup
}

func gameIndex(cat *catalog.Catalog, name string) int {
	for i, g := range cat.Games() {
		if g.Name == name {
			return i
		}
	}
	return -1
}

// slotChoice decodes a "game|date|time" slot payload.
func slotChoice(c tele.Context, cat *catalog.Catalog) (catalog.Game, string, string, error) {
	parts, err := callbacks.PayloadFields(c, payloadSep, 3)
	if err != nil {
		return catalog.Game{}, "", "", err
	}
	pos, err := strconv.Atoi(parts[0])
	games := cat.Games()
	if err != nil || pos < 0 || pos >= len(games) {
		return catalog.Game{}, "", "", strconv.ErrSyntax
	}
	return games[pos], parts[1], parts[2], nil
}
