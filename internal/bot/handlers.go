// Package bot binds the registration workflow and the moderation tools to
// Telegram commands, texts and buttons.
package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/fingames/core/logger"
	tghelpers "github.com/m3rciful/fingames/core/telegram/helpers"
	"github.com/m3rciful/fingames/core/telegram/keyboard"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/moderation"
	"github.com/m3rciful/fingames/internal/registration"
	"github.com/m3rciful/fingames/internal/voucher"
	"github.com/m3rciful/fingames/internal/workflow"
)

// Handlers serves participant and moderator updates.
type Handlers struct {
	engine     *workflow.Engine
	moderation *moderation.Service
	moderators moderation.Moderators
	exportDir  string
}

// Option customises Handlers.
type Option func(*Handlers)

// WithExportDir sets where export files are staged before upload.
func WithExportDir(dir string) Option {
	return func(h *Handlers) { h.exportDir = dir }
}

// New builds the handler set.
func New(engine *workflow.Engine, mod *moderation.Service, moderators moderation.Moderators, opts ...Option) *Handlers {
	h := &Handlers{engine: engine, moderation: mod, moderators: moderators}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func participant(c tele.Context) workflow.Participant {
	u := c.Sender()
	if u == nil {
		return workflow.Participant{}
	}
	name := u.Username
	if name != "" {
		name = "@" + name
	} else {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return workflow.Participant{ID: u.ID, Name: name}
}

// fail logs nothing itself: the router summary records the returned error.
func fail(c tele.Context, op string, err error) error {
	_ = tghelpers.SendText(c, textFailure)
	return fmt.Errorf("%s: %w", op, err)
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	res := h.engine.Start(ctx, participant(c))
	return tghelpers.SendText(c, textWelcome, &tele.SendOptions{ReplyMarkup: gamesKeyboard(res.Games)})
}

func (h *Handlers) onHelp(c tele.Context) error {
	text := textHelp
	if c.Sender() != nil && h.moderators.Contains(c.Sender().ID) {
		text += textModeratorHelp
	}
	return tghelpers.SendText(c, text)
}

func (h *Handlers) onCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	h.engine.Cancel(ctx, participant(c))
	return tghelpers.SendText(c, textCancelled, &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()})
}

func (h *Handlers) onMy(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	p := participant(c)
	regs, err := h.engine.Registrations(ctx, p.ID)
	if err != nil {
		return fail(c, "my", err)
	}
	if len(regs) == 0 {
		return tghelpers.SendText(c, textNoOwn)
	}
	return tghelpers.SendMDV2(c, ownListText(h.engine.Catalog(), regs))
}

// onText handles game choices. It serves the FSM steps and also the idle
// fallback, so the persistent game keyboard works without /start.
func (h *Handlers) onText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	p := participant(c)
	current := h.engine.State(p.ID)

	res, err := h.engine.ChooseGame(ctx, p, c.Text())
	switch {
	case errors.Is(err, workflow.ErrUnknownGame):
		return h.reprompt(c, current)
	case errors.Is(err, registration.ErrNoCapacity):
		return tghelpers.SendText(c, textNoCapacity)
	case err != nil:
		return fail(c, "choose game", err)
	}

	label := res.Game.Label()
	switch res.Outcome {
	case workflow.OutcomeDuplicate:
		return tghelpers.SendMDV2(c, duplicateText(*res.Registration, label))
	case workflow.OutcomeRegistered:
		return tghelpers.SendMDV2(c, registeredText(*res.Registration, label))
	default:
		markup := slotsKeyboard(h.engine.Catalog(), res.Game, res.Slots)
		return tghelpers.SendText(c, chooseSlotText(label), &tele.SendOptions{ReplyMarkup: markup})
	}
}

// OnMedia answers photos, stickers and files; registration takes text only.
func (h *Handlers) OnMedia(c tele.Context) error {
	return h.reprompt(c, h.engine.State(participant(c).ID))
}

// reprompt repeats the question of the current step.
func (h *Handlers) reprompt(c tele.Context, current state.State) error {
	if current == workflow.StateChoosingSlot {
		return tghelpers.SendText(c, textPickSlot)
	}
	games := h.engine.Catalog().Games()
	return tghelpers.SendText(c, textPickGame, &tele.SendOptions{ReplyMarkup: gamesKeyboard(games)})
}

func (h *Handlers) onSlot(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	p := participant(c)

	game, date, tm, err := slotChoice(c, h.engine.Catalog())
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelDebug, "callback.bad_payload",
			slog.String("cb_key", cbSlot),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		return tghelpers.SendText(c, textStaleButton)
	}

	res, err := h.engine.ChooseSlot(ctx, p, game.Name, date, tm)
	switch {
	case err == nil:
		label := gameLabel(h.engine.Catalog(), res.Registration.Game)
		return tghelpers.SendMDV2(c, registeredText(*res.Registration, label))
	case errors.Is(err, registration.ErrSlotFull):
		if len(res.Slots) == 0 {
			return tghelpers.SendText(c, textNoCapacity)
		}
		markup := slotsKeyboard(h.engine.Catalog(), game, res.Slots)
		return tghelpers.SendText(c, textSlotFull, &tele.SendOptions{ReplyMarkup: markup})
	case errors.Is(err, registration.ErrDuplicateRegistration):
		if res.Registration == nil {
			return tghelpers.SendText(c, textStaleButton)
		}
		label := gameLabel(h.engine.Catalog(), res.Registration.Game)
		return tghelpers.SendMDV2(c, duplicateText(*res.Registration, label))
	case errors.Is(err, workflow.ErrNoActiveFlow), errors.Is(err, workflow.ErrUnknownSlot):
		return tghelpers.SendText(c, textStaleButton)
	default:
		return fail(c, "choose slot", err)
	}
}

func (h *Handlers) onStaleButton(c tele.Context) error {
	return tghelpers.SendText(c, textStaleButton)
}

// OnRateLimited answers updates dropped by the rate limiter.
func (h *Handlers) OnRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: textTooFast})
	}
	return tghelpers.SendText(c, textTooFast)
}

func (h *Handlers) onList(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := h.moderation.List(ctx)
	if err != nil {
		return fail(c, "list", err)
	}
	return tghelpers.SendText(c, moderation.RenderList(textListTitle, list, moderation.MaxMessageLen))
}

func (h *Handlers) onActive(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := h.moderation.ListActive(ctx)
	if err != nil {
		return fail(c, "active", err)
	}
	return tghelpers.SendText(c, moderation.RenderList(textActiveTitle, list, moderation.MaxMessageLen))
}

func (h *Handlers) onRedeem(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := c.Args()
	if len(args) != 1 {
		return tghelpers.SendText(c, textRedeemUsage)
	}
	code := voucher.Normalize(args[0])

	reg, err := h.moderation.Redeem(ctx, code)
	switch {
	case err == nil:
		return tghelpers.SendText(c, redeemedText(reg.VoucherCode, gameLabel(h.engine.Catalog(), reg.Game)))
	case errors.Is(err, registration.ErrVoucherNotFound):
		return tghelpers.SendText(c, notFoundText(code))
	case errors.Is(err, registration.ErrAlreadyRedeemed):
		return tghelpers.SendText(c, alreadyUsedText(code))
	default:
		return fail(c, "redeem", err)
	}
}

// onExport uploads the CSV synchronously: the file is removed right after the
// upload, so it cannot go through the async sender.
func (h *Handlers) onExport(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	file, cleanup, err := h.moderation.ExportFile(ctx, h.exportDir)
	defer cleanup()
	switch {
	case errors.Is(err, moderation.ErrEmptyExport):
		return tghelpers.SendText(c, textEmpty)
	case err != nil:
		return fail(c, "export", err)
	}

	doc := &tele.Document{
		File:     tele.FromDisk(file.Path),
		FileName: file.Name,
		MIME:     "text/csv",
		Caption:  exportCaption(file.Rows),
	}
	if err := c.Send(doc); err != nil {
		return fmt.Errorf("send export: %w", err)
	}
	logger.SVCModeration.LogAttrs(ctx, slog.LevelInfo, "export.sent",
		slog.Int("rows", file.Rows),
		slog.String("file", file.Name),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
	return nil
}

func (h *Handlers) onStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	stats, err := h.moderation.Stats(ctx)
	if err != nil {
		return fail(c, "stats", err)
	}
	return tghelpers.SendText(c, moderation.RenderStats(stats))
}

