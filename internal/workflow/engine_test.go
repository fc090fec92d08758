package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/registration"
	"github.com/m3rciful/fingames/internal/storage/memory"
	"github.com/m3rciful/fingames/internal/voucher"
)

const (
	gameKupi = "Купимания"
	slotDate = "08.10.2025"
	slotTime = "11:20-12:00"
)

type scriptedVouchers struct {
	mu    sync.Mutex
	codes []string
}

func (s *scriptedVouchers) Generate(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return "", errors.New("script exhausted")
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

type brokenStore struct {
	registration.Store
}

func (brokenStore) FindByParticipantAndGame(context.Context, int64, string) (*registration.Registration, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	engine   *Engine
	store    *memory.Store
	sessions *state.MemoryManager
	created  []registration.Registration
	mu       sync.Mutex
}

func newFixture(t *testing.T, cfg catalog.Config, vouchers VoucherSource) *fixture {
	t.Helper()
	cat, err := catalog.New(cfg)
	require.NoError(t, err)

	f := &fixture{store: memory.New(), sessions: state.NewMemoryManager()}
	if vouchers == nil {
		vouchers = voucher.NewGenerator(f.store)
	}
	f.engine = NewEngine(f.store, cat, f.sessions, vouchers, WithListener(ListenerFunc(
		func(_ context.Context, reg registration.Registration) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.created = append(f.created, reg)
		})))
	return f
}

func (f *fixture) register(t *testing.T, p Participant, game, date, tm string) *registration.Registration {
	t.Helper()
	ctx := context.Background()
	f.engine.Start(ctx, p)
	res, err := f.engine.ChooseGame(ctx, p, game)
	require.NoError(t, err)
	require.Equal(t, OutcomeChooseSlot, res.Outcome)
	out, err := f.engine.ChooseSlot(ctx, p, game, date, tm)
	require.NoError(t, err)
	return out.Registration
}

func TestRegisterThenDuplicateReturnsSameCode(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()
	p := Participant{ID: 1, Name: "alice"}

	start := f.engine.Start(ctx, p)
	require.Len(t, start.Games, 2)
	require.Equal(t, StateChoosingGame, f.engine.State(p.ID))

	res, err := f.engine.ChooseGame(ctx, p, gameKupi)
	require.NoError(t, err)
	require.Equal(t, OutcomeChooseSlot, res.Outcome)
	require.Len(t, res.Slots, 6)
	require.Equal(t, StateChoosingSlot, f.engine.State(p.ID))

	out, err := f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.NoError(t, err)
	reg := out.Registration
	require.True(t, voucher.Valid(reg.VoucherCode))
	require.Equal(t, slotDate, reg.SlotDate)
	require.Equal(t, "alice", reg.ParticipantName)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))
	require.Len(t, f.created, 1)

	f.engine.Start(ctx, p)
	again, err := f.engine.ChooseGame(ctx, p, "🎲 "+gameKupi)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, again.Outcome)
	require.Equal(t, reg.VoucherCode, again.Registration.VoucherCode)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))

	all, err := f.store.ListAll(ctx, registration.OrderCreated)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestFifthParticipantGetsSlotFull(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()
	late := Participant{ID: 99}

	f.engine.Start(ctx, late)
	offer, err := f.engine.ChooseGame(ctx, late, gameKupi)
	require.NoError(t, err)
	require.Contains(t, offer.Slots, catalog.Slot{Date: slotDate, Time: slotTime})

	for i := int64(1); i <= 4; i++ {
		f.register(t, Participant{ID: i}, gameKupi, slotDate, slotTime)
	}

	res, err := f.engine.ChooseSlot(ctx, late, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, registration.ErrSlotFull)
	require.Len(t, res.Slots, 5)
	require.NotContains(t, res.Slots, catalog.Slot{Date: slotDate, Time: slotTime})
	require.Equal(t, StateChoosingSlot, f.engine.State(late.ID), "participant may pick another slot")

	out, err := f.engine.ChooseSlot(ctx, late, gameKupi, "09.10.2025", slotTime)
	require.NoError(t, err)
	require.Equal(t, "09.10.2025", out.Registration.SlotDate)
}

func TestConcurrentRegistrationsRespectCapacity(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()

	const n = 12
	for i := int64(1); i <= n; i++ {
		p := Participant{ID: i}
		f.engine.Start(ctx, p)
		_, err := f.engine.ChooseGame(ctx, p, gameKupi)
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		full atomic.Int32
	)
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.engine.ChooseSlot(ctx, Participant{ID: id}, gameKupi, slotDate, slotTime)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, registration.ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("participant %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 4, ok.Load())
	require.EqualValues(t, n-4, full.Load())

	count, err := f.store.CountForSlot(ctx, registration.SlotKey{Game: gameKupi, Date: slotDate, Time: slotTime})
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestNoCapacityResetsToIdle(t *testing.T) {
	cfg := catalog.Config{
		Games:    []catalog.Game{{Name: gameKupi}},
		Days:     []catalog.Day{{Date: slotDate, Times: []string{slotTime}}},
		Capacity: 1,
	}
	f := newFixture(t, cfg, nil)
	ctx := context.Background()
	f.register(t, Participant{ID: 1}, gameKupi, slotDate, slotTime)

	p := Participant{ID: 2}
	f.engine.Start(ctx, p)
	_, err := f.engine.ChooseGame(ctx, p, gameKupi)
	require.ErrorIs(t, err, registration.ErrNoCapacity)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))
}

func TestLastSlotTakenResetsToIdle(t *testing.T) {
	cfg := catalog.Config{
		Games:    []catalog.Game{{Name: gameKupi}},
		Days:     []catalog.Day{{Date: slotDate, Times: []string{slotTime}}},
		Capacity: 1,
	}
	f := newFixture(t, cfg, nil)
	ctx := context.Background()
	late := Participant{ID: 2}
	f.engine.Start(ctx, late)
	_, err := f.engine.ChooseGame(ctx, late, gameKupi)
	require.NoError(t, err)

	f.register(t, Participant{ID: 1}, gameKupi, slotDate, slotTime)

	res, err := f.engine.ChooseSlot(ctx, late, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, registration.ErrSlotFull)
	require.Empty(t, res.Slots)
	require.Equal(t, state.StateIdle, f.engine.State(late.ID))
}

func TestChooseSlotGuards(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()
	p := Participant{ID: 5}

	_, err := f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, ErrNoActiveFlow)

	f.engine.Start(ctx, p)
	_, err = f.engine.ChooseGame(ctx, p, "Монополия")
	require.ErrorIs(t, err, ErrUnknownGame)
	require.Equal(t, StateChoosingGame, f.engine.State(p.ID))

	_, err = f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, ErrNoActiveFlow)

	_, err = f.engine.ChooseGame(ctx, p, gameKupi)
	require.NoError(t, err)
	_, err = f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, "23:00-23:30")
	require.ErrorIs(t, err, ErrUnknownSlot)
	require.Equal(t, StateChoosingSlot, f.engine.State(p.ID))

	f.engine.Cancel(ctx, p)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))
	_, err = f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, ErrNoActiveFlow)
}

func TestSlotFromEarlierOfferForAnotherGameIsStale(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()
	p := Participant{ID: 6}

	f.engine.Start(ctx, p)
	_, err := f.engine.ChooseGame(ctx, p, gameKupi)
	require.NoError(t, err)
	_, err = f.engine.ChooseGame(ctx, p, "Мир проектов")
	require.NoError(t, err)

	_, err = f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, ErrNoActiveFlow)
	require.Equal(t, StateChoosingSlot, f.engine.State(p.ID))
	require.Empty(t, f.created)

	out, err := f.engine.ChooseSlot(ctx, p, "Мир проектов", slotDate, slotTime)
	require.NoError(t, err)
	require.Equal(t, "Мир проектов", out.Registration.Game)
	_, err = f.store.FindByParticipantAndGame(ctx, p.ID, gameKupi)
	require.ErrorIs(t, err, registration.ErrNotFound)
}

func TestRegisteredElsewhereWhileChoosingSlot(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	ctx := context.Background()
	p := Participant{ID: 3}

	f.engine.Start(ctx, p)
	_, err := f.engine.ChooseGame(ctx, p, gameKupi)
	require.NoError(t, err)

	first, err := f.store.Insert(ctx, registration.Registration{ParticipantID: p.ID, Game: gameKupi, VoucherCode: "FG-AAAAAA"})
	require.NoError(t, err)

	res, err := f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, registration.ErrDuplicateRegistration)
	require.Equal(t, first.VoucherCode, res.Registration.VoucherCode)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))
}

func TestVoucherConflictIsRegenerated(t *testing.T) {
	vouchers := &scriptedVouchers{codes: []string{"FG-AAAAAA", "FG-AAAAAA", "FG-BBBBBB"}}
	f := newFixture(t, catalog.Default(), vouchers)
	ctx := context.Background()
	_, err := f.store.Insert(ctx, registration.Registration{ParticipantID: 500, Game: gameKupi, VoucherCode: "FG-AAAAAA"})
	require.NoError(t, err)

	reg := f.register(t, Participant{ID: 1}, gameKupi, slotDate, slotTime)
	require.Equal(t, "FG-BBBBBB", reg.VoucherCode)
}

func TestVoucherConflictSurfacesAfterRetries(t *testing.T) {
	vouchers := &scriptedVouchers{codes: []string{"FG-AAAAAA", "FG-AAAAAA", "FG-AAAAAA", "FG-CCCCCC"}}
	f := newFixture(t, catalog.Default(), vouchers)
	ctx := context.Background()
	_, err := f.store.Insert(ctx, registration.Registration{ParticipantID: 500, Game: gameKupi, VoucherCode: "FG-AAAAAA"})
	require.NoError(t, err)

	p := Participant{ID: 1}
	f.engine.Start(ctx, p)
	_, err = f.engine.ChooseGame(ctx, p, gameKupi)
	require.NoError(t, err)

	_, err = f.engine.ChooseSlot(ctx, p, gameKupi, slotDate, slotTime)
	require.ErrorIs(t, err, registration.ErrDuplicateVoucher)
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))
	require.Empty(t, f.created)
}

func TestSlotlessCatalogRegistersImmediately(t *testing.T) {
	cfg := catalog.Config{Games: []catalog.Game{{Name: gameKupi}, {Name: "Мир проектов"}}, Capacity: 4}
	f := newFixture(t, cfg, nil)
	ctx := context.Background()
	p := Participant{ID: 1}

	f.engine.Start(ctx, p)
	res, err := f.engine.ChooseGame(ctx, p, "Мир проектов")
	require.NoError(t, err)
	require.Equal(t, OutcomeRegistered, res.Outcome)
	require.False(t, res.Registration.HasSlot())
	require.Equal(t, state.StateIdle, f.engine.State(p.ID))

	again, err := f.engine.ChooseGame(ctx, p, "Мир проектов")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, again.Outcome)
	require.Equal(t, res.Registration.VoucherCode, again.Registration.VoucherCode)
}

func TestStorageFailureResetsToIdle(t *testing.T) {
	cat := catalog.MustDefault()
	sessions := state.NewMemoryManager()
	engine := NewEngine(brokenStore{Store: memory.New()}, cat, sessions, voucher.NewGenerator(nil))
	ctx := context.Background()
	p := Participant{ID: 1}

	engine.Start(ctx, p)
	_, err := engine.ChooseGame(ctx, p, gameKupi)
	require.ErrorContains(t, err, "connection refused")
	require.False(t, registration.IsSoft(err))
	require.Equal(t, state.StateIdle, engine.State(p.ID))
}

func TestRegistrationsListsOwnEntries(t *testing.T) {
	f := newFixture(t, catalog.Default(), nil)
	f.register(t, Participant{ID: 1}, gameKupi, slotDate, slotTime)
	f.register(t, Participant{ID: 2}, gameKupi, slotDate, slotTime)
	f.register(t, Participant{ID: 1}, "Мир проектов", "10.10.2025", "13:50-14:30")

	regs, err := f.engine.Registrations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	for _, r := range regs {
		require.Equal(t, int64(1), r.ParticipantID, fmt.Sprintf("%+v", r))
	}
}
