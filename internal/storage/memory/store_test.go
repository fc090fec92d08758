package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/fingames/internal/registration"
)

func reg(pid int64, game, code string) registration.Registration {
	return registration.Registration{
		ParticipantID: pid,
		Game:          game,
		SlotDate:      "08.10.2025",
		SlotTime:      "11:20-12:00",
		VoucherCode:   code,
	}
}

func TestInsertAssignsIdentity(t *testing.T) {
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return at }))
	ctx := context.Background()

	got, err := s.Insert(ctx, reg(1, "Купимания", "FG-AAAAAA"))
	require.NoError(t, err)
	require.Equal(t, int64(1), got.ID)
	require.Equal(t, at, got.CreatedAt)
	require.False(t, got.Used)

	found, err := s.FindByParticipantAndGame(ctx, 1, "Купимания")
	require.NoError(t, err)
	require.Equal(t, "FG-AAAAAA", found.VoucherCode)

	exists, err := s.VoucherExists(ctx, "FG-AAAAAA")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestInsertUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, reg(1, "Купимания", "FG-AAAAAA"))
	require.NoError(t, err)

	_, err = s.Insert(ctx, reg(2, "Купимания", "FG-AAAAAA"))
	require.ErrorIs(t, err, registration.ErrDuplicateVoucher)

	_, err = s.Insert(ctx, reg(1, "Купимания", "FG-BBBBBB"))
	require.ErrorIs(t, err, registration.ErrDuplicateRegistration)

	_, err = s.Insert(ctx, reg(1, "Мир проектов", "FG-BBBBBB"))
	require.NoError(t, err)
}

func TestInsertWithinCapacityConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()

	const attempts = 12
	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		full atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := "FG-A0000" + string(rune('A'+i))
			_, err := s.InsertWithinCapacity(ctx, reg(int64(100+i), "Купимания", code), registration.Capacity)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, registration.ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, registration.Capacity, ok.Load())
	require.EqualValues(t, attempts-registration.Capacity, full.Load())

	n, err := s.CountForSlot(ctx, registration.SlotKey{Game: "Купимания", Date: "08.10.2025", Time: "11:20-12:00"})
	require.NoError(t, err)
	require.Equal(t, registration.Capacity, n)
}

func TestMarkUsedOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Insert(ctx, reg(1, "Купимания", "FG-AAAAAA"))
	require.NoError(t, err)

	used, err := s.MarkUsed(ctx, "FG-AAAAAA")
	require.NoError(t, err)
	require.True(t, used.Used)
	require.NotNil(t, used.UsedAt)

	_, err = s.MarkUsed(ctx, "FG-AAAAAA")
	require.ErrorIs(t, err, registration.ErrAlreadyUsed)

	_, err = s.MarkUsed(ctx, "FG-ZZZZZZ")
	require.ErrorIs(t, err, registration.ErrNotFound)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Insert(ctx, reg(1, "Купимания", "FG-AAAAAA"))
	require.NoError(t, err)

	all, err := s.ListAll(ctx, registration.OrderCreated)
	require.NoError(t, err)
	all[0].Used = true

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestListByParticipant(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.Insert(ctx, reg(1, "Купимания", "FG-AAAAAA"))
	_, _ = s.Insert(ctx, reg(2, "Купимания", "FG-BBBBBB"))
	_, _ = s.Insert(ctx, reg(1, "Мир проектов", "FG-CCCCCC"))

	mine, err := s.ListByParticipant(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "FG-AAAAAA", mine[0].VoucherCode)
	require.Equal(t, "FG-CCCCCC", mine[1].VoucherCode)
}
