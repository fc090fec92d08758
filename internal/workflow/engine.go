// Package workflow drives the per-participant registration dialog:
// choose a game, choose a slot, receive a voucher.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/registration"
)

// Dialog states stored in the session manager.
const (
	StateChoosingGame state.State = "choosing_game"
	StateChoosingSlot state.State = "choosing_slot"
)

const (
	tempGame = "game"

	maxVoucherAttempts = 3
)

var (
	// ErrUnknownGame is returned when the chosen game is not in the catalog.
	ErrUnknownGame = errors.New("unknown game")
	// ErrUnknownSlot is returned when the chosen slot is not in the catalog.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrNoActiveFlow is returned when a slot arrives outside of the slot step.
	ErrNoActiveFlow = errors.New("no registration in progress")
)

// Participant identifies who is registering.
type Participant struct {
	ID   int64
	Name string
}

// VoucherSource issues candidate voucher codes.
type VoucherSource interface {
	Generate(ctx context.Context) (string, error)
}

// Listener observes completed registrations. Implementations must not block.
type Listener interface {
	Registered(ctx context.Context, reg registration.Registration)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, reg registration.Registration)

// Registered calls f.
func (f ListenerFunc) Registered(ctx context.Context, reg registration.Registration) {
	f(ctx, reg)
}

// Outcome tells the caller what a game choice led to.
type Outcome int

const (
	// OutcomeChooseSlot means slots were offered and the dialog waits for one.
	OutcomeChooseSlot Outcome = iota
	// OutcomeDuplicate means the participant already holds a registration for the game.
	OutcomeDuplicate
	// OutcomeRegistered means the registration was created right away (no slots configured).
	OutcomeRegistered
)

// StartResult carries the games offered at the start of the dialog.
type StartResult struct {
	Games []catalog.Game
}

// GameResult is returned by ChooseGame.
type GameResult struct {
	Outcome      Outcome
	Game         catalog.Game
	Slots        []catalog.Slot
	Registration *registration.Registration
}

// SlotResult is returned by ChooseSlot. On ErrSlotFull Slots holds the
// refreshed offer; on ErrDuplicateRegistration Registration holds the existing record.
type SlotResult struct {
	Registration *registration.Registration
	Slots        []catalog.Slot
}

// Engine is safe for concurrent use. Per-participant steps are expected to be
// sequential; cross-participant races are settled by the store.
type Engine struct {
	store     registration.Store
	catalog   *catalog.Catalog
	sessions  state.Manager
	vouchers  VoucherSource
	listeners []Listener
}

// Option customises the engine.
type Option func(*Engine)

// WithListener registers an observer for completed registrations.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

// NewEngine wires the engine to its collaborators.
func NewEngine(store registration.Store, cat *catalog.Catalog, sessions state.Manager, vouchers VoucherSource, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		catalog:  cat,
		sessions: sessions,
		vouchers: vouchers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog exposes the catalog the engine offers from.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// State reports the participant's current dialog state.
func (e *Engine) State(participantID int64) state.State {
	return e.sessions.GetState(participantID)
}

func (e *Engine) reset(participantID int64) {
	e.sessions.Clear(participantID)
}

// Start opens the dialog and presents the games.
func (e *Engine) Start(ctx context.Context, p Participant) StartResult {
	e.reset(p.ID)
	e.sessions.SetState(p.ID, StateChoosingGame)
	logger.SVCRegistrations.LogAttrs(ctx, slog.LevelDebug, "flow.start",
		slog.Int64("participant_id", p.ID),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
	return StartResult{Games: e.catalog.Games()}
}

// Cancel abandons the dialog without side effects.
func (e *Engine) Cancel(ctx context.Context, p Participant) {
	e.reset(p.ID)
	logger.SVCRegistrations.LogAttrs(ctx, slog.LevelDebug, "flow.cancel",
		slog.Int64("participant_id", p.ID),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
}

// ChooseGame handles a game selection. The duplicate check always runs before
// any slot is offered. Picking a game at any point restarts the slot step, so a
// stale game cached from an abandoned dialog is never reused.
func (e *Engine) ChooseGame(ctx context.Context, p Participant, text string) (GameResult, error) {
	game, ok := e.catalog.Game(text)
	if !ok {
		return GameResult{}, ErrUnknownGame
	}
	res := GameResult{Game: game}

	existing, err := e.store.FindByParticipantAndGame(ctx, p.ID, game.Name)
	switch {
	case err == nil:
		e.reset(p.ID)
		e.logDuplicate(ctx, p, existing)
		res.Outcome = OutcomeDuplicate
		res.Registration = existing
		return res, nil
	case !errors.Is(err, registration.ErrNotFound):
		e.reset(p.ID)
		return res, fmt.Errorf("check registration: %w", err)
	}

	if !e.catalog.HasSlots() {
		reg, err := e.commit(ctx, registration.Registration{
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
			Game:            game.Name,
		}, false)
		e.reset(p.ID)
		if errors.Is(err, registration.ErrDuplicateRegistration) {
			return e.duplicateAfterRace(ctx, p, res)
		}
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeRegistered
		res.Registration = reg
		return res, nil
	}

	slots, err := e.catalog.AvailableSlots(ctx, game.Name, e.store)
	if err != nil {
		e.reset(p.ID)
		return res, fmt.Errorf("available slots: %w", err)
	}
	if len(slots) == 0 {
		e.reset(p.ID)
		logger.SVCRegistrations.LogAttrs(ctx, slog.LevelInfo, "registration.no_capacity",
			slog.Int64("participant_id", p.ID),
			slog.String("game", game.Name),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		return res, registration.ErrNoCapacity
	}

	e.sessions.SetState(p.ID, StateChoosingSlot)
	e.sessions.SetTemp(p.ID, tempGame, game.Name)
	res.Outcome = OutcomeChooseSlot
	res.Slots = slots
	return res, nil
}

// ChooseSlot commits the registration for the slot the participant picked.
// game names the game the slot was offered for; a pick from an older offer
// for another game is rejected with ErrNoActiveFlow and leaves the current
// offer open. The capacity check here is authoritative and runs inside the
// store's per-slot critical section.
func (e *Engine) ChooseSlot(ctx context.Context, p Participant, game, date, tm string) (SlotResult, error) {
	var res SlotResult
	if e.sessions.GetState(p.ID) != StateChoosingSlot {
		return res, ErrNoActiveFlow
	}
	gameName, ok := e.sessions.GetTempString(p.ID, tempGame)
	if !ok || gameName == "" {
		e.reset(p.ID)
		return res, ErrNoActiveFlow
	}
	if offered, ok := e.catalog.Game(game); !ok || offered.Name != gameName {
		logger.SVCRegistrations.LogAttrs(ctx, slog.LevelInfo, "registration.stale_offer",
			slog.Int64("participant_id", p.ID),
			slog.String("game", gameName),
			slog.String("offered", game),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		return res, ErrNoActiveFlow
	}
	slot, ok := e.catalog.Lookup(date, tm)
	if !ok {
		return res, ErrUnknownSlot
	}

	existing, err := e.store.FindByParticipantAndGame(ctx, p.ID, gameName)
	switch {
	case err == nil:
		e.reset(p.ID)
		e.logDuplicate(ctx, p, existing)
		res.Registration = existing
		return res, registration.ErrDuplicateRegistration
	case !errors.Is(err, registration.ErrNotFound):
		e.reset(p.ID)
		return res, fmt.Errorf("check registration: %w", err)
	}

	reg, err := e.commit(ctx, registration.Registration{
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		Game:            gameName,
		SlotDate:        slot.Date,
		SlotTime:        slot.Time,
	}, true)
	switch {
	case err == nil:
		e.reset(p.ID)
		res.Registration = reg
		return res, nil
	case errors.Is(err, registration.ErrSlotFull):
		logger.SVCRegistrations.LogAttrs(ctx, slog.LevelInfo, "registration.slot_full",
			slog.Int64("participant_id", p.ID),
			slog.String("game", gameName),
			slog.String("slot_date", slot.Date),
			slog.String("slot_time", slot.Time),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		slots, serr := e.catalog.AvailableSlots(ctx, gameName, e.store)
		if serr != nil {
			e.reset(p.ID)
			return res, fmt.Errorf("available slots: %w", serr)
		}
		if len(slots) == 0 {
			e.reset(p.ID)
		}
		res.Slots = slots
		return res, err
	case errors.Is(err, registration.ErrDuplicateRegistration):
		e.reset(p.ID)
		existing, ferr := e.store.FindByParticipantAndGame(ctx, p.ID, gameName)
		if ferr == nil {
			res.Registration = existing
		}
		return res, err
	default:
		e.reset(p.ID)
		return res, err
	}
}

// Registrations lists the participant's own registrations.
func (e *Engine) Registrations(ctx context.Context, participantID int64) ([]registration.Registration, error) {
	regs, err := e.store.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// commit issues a voucher and inserts the registration. A voucher collision
// reported by the store's unique constraint triggers a fresh code, at most
// maxVoucherAttempts times. Once the bound is hit ErrDuplicateVoucher is
// surfaced to the caller wrapped, and the participant gets a failed
// registration instead of a silent retry.
func (e *Engine) commit(ctx context.Context, reg registration.Registration, withinCapacity bool) (*registration.Registration, error) {
	for attempt := 1; attempt <= maxVoucherAttempts; attempt++ {
		code, err := e.vouchers.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate voucher: %w", err)
		}
		reg.VoucherCode = code

		var out *registration.Registration
		if withinCapacity {
			out, err = e.store.InsertWithinCapacity(ctx, reg, e.catalog.Capacity())
		} else {
			out, err = e.store.Insert(ctx, reg)
		}
		if errors.Is(err, registration.ErrDuplicateVoucher) {
			logger.SVCVouchers.LogAttrs(ctx, slog.LevelWarn, "voucher.conflict",
				slog.String("voucher", code),
				slog.Int("attempt", attempt),
				slog.String("rid", logger.RIDFrom(ctx)),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		logger.SVCRegistrations.LogAttrs(ctx, slog.LevelInfo, "registration.created",
			slog.Int64("participant_id", out.ParticipantID),
			slog.String("game", out.Game),
			slog.String("slot_date", out.SlotDate),
			slog.String("slot_time", out.SlotTime),
			slog.String("voucher", out.VoucherCode),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		for _, l := range e.listeners {
			l.Registered(ctx, *out)
		}
		return out, nil
	}
	return nil, fmt.Errorf("issue voucher after %d attempts: %w", maxVoucherAttempts, registration.ErrDuplicateVoucher)
}

func (e *Engine) duplicateAfterRace(ctx context.Context, p Participant, res GameResult) (GameResult, error) {
	existing, err := e.store.FindByParticipantAndGame(ctx, p.ID, res.Game.Name)
	if err != nil {
		return res, fmt.Errorf("load existing registration: %w", err)
	}
	e.logDuplicate(ctx, p, existing)
	res.Outcome = OutcomeDuplicate
	res.Registration = existing
	return res, nil
}

func (e *Engine) logDuplicate(ctx context.Context, p Participant, existing *registration.Registration) {
	logger.SVCRegistrations.LogAttrs(ctx, slog.LevelInfo, "registration.duplicate",
		slog.Int64("participant_id", p.ID),
		slog.String("game", existing.Game),
		slog.String("voucher", existing.VoucherCode),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
}
