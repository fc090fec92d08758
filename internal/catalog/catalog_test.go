package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/fingames/internal/registration"
)

type mapCounter map[registration.SlotKey]int

func (m mapCounter) CountForSlot(_ context.Context, key registration.SlotKey) (int, error) {
	return m[key], nil
}

type failingCounter struct{}

func (failingCounter) CountForSlot(context.Context, registration.SlotKey) (int, error) {
	return 0, errors.New("boom")
}

func TestDefaultCatalog(t *testing.T) {
	c := MustDefault()

	require.Len(t, c.Games(), 2)
	require.Equal(t, "Купимания", c.Games()[0].Name)
	require.Equal(t, "🎲 Купимания", c.Games()[0].Label())
	require.Len(t, c.Slots(), 6)
	require.Equal(t, Slot{Date: "08.10.2025", Time: "11:20-12:00"}, c.Slots()[0])
	require.Equal(t, Slot{Date: "10.10.2025", Time: "13:50-14:30"}, c.Slots()[5])
	require.Equal(t, 4, c.Capacity())
	require.True(t, c.HasSlots())
}

func TestGameLookupAcceptsLabel(t *testing.T) {
	c := MustDefault()

	g, ok := c.Game("🌍 Мир проектов")
	require.True(t, ok)
	require.Equal(t, "Мир проектов", g.Name)

	_, ok = c.Game("Монополия")
	require.False(t, ok)
}

func TestLookupAndIndex(t *testing.T) {
	c := MustDefault()

	s, ok := c.Lookup("09.10.2025", "15:50-16:30")
	require.True(t, ok)
	require.Equal(t, 3, c.Index(s))

	_, ok = c.Lookup("09.10.2025", "11:50-12:30")
	require.False(t, ok)
	require.Equal(t, -1, c.Index(Slot{Date: "01.01.2026", Time: "10:00"}))
}

func TestAvailableSlotsSkipsFull(t *testing.T) {
	c := MustDefault()
	counts := mapCounter{
		{Game: "Купимания", Date: "08.10.2025", Time: "11:20-12:00"}: 4,
		{Game: "Купимания", Date: "09.10.2025", Time: "11:20-12:00"}: 3,
		{Game: "Мир проектов", Date: "08.10.2025", Time: "15:50-16:30"}: 4,
	}

	slots, err := c.AvailableSlots(context.Background(), "Купимания", counts)
	require.NoError(t, err)
	require.Len(t, slots, 5)
	require.Equal(t, Slot{Date: "08.10.2025", Time: "15:50-16:30"}, slots[0])
	require.Equal(t, Slot{Date: "09.10.2025", Time: "11:20-12:00"}, slots[1])
}

func TestAvailableSlotsPropagatesError(t *testing.T) {
	_, err := MustDefault().AvailableSlots(context.Background(), "Купимания", failingCounter{})
	require.ErrorContains(t, err, "boom")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Capacity: 4})
	require.ErrorContains(t, err, "at least one game")

	_, err = New(Config{Games: []Game{{Name: "A"}}, Capacity: 0})
	require.ErrorContains(t, err, "capacity")

	_, err = New(Config{Games: []Game{{Name: "A"}, {Name: "A"}}, Capacity: 1})
	require.ErrorContains(t, err, "duplicate game")

	_, err = New(Config{
		Games:    []Game{{Name: "A"}},
		Days:     []Day{{Date: "2025-10-08", Times: []string{"10:00"}}},
		Capacity: 1,
	})
	require.ErrorContains(t, err, "invalid date")

	_, err = New(Config{
		Games:    []Game{{Name: "A"}},
		Days:     []Day{{Date: "08.10.2025", Times: []string{"10:00", "10:00"}}},
		Capacity: 1,
	})
	require.ErrorContains(t, err, "duplicate slot")
}

func TestCatalogWithoutSlots(t *testing.T) {
	c, err := New(Config{Games: []Game{{Name: "A"}}, Capacity: 4})
	require.NoError(t, err)
	require.False(t, c.HasSlots())

	slots, err := c.AvailableSlots(context.Background(), "A", mapCounter{})
	require.NoError(t, err)
	require.Empty(t, slots)
}
