// Package catalog holds the static list of games and time slots on offer.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/fingames/internal/registration"
)

const dateLayout = "02.01.2006"

// Game is one of the games participants can register for.
type Game struct {
	Name  string `yaml:"name"`
	Emoji string `yaml:"emoji"`
}

// Label renders the button text for the game.
func (g Game) Label() string {
	if g.Emoji == "" {
		return g.Name
	}
	return g.Emoji + " " + g.Name
}

// Day lists the time ranges offered on one date.
type Day struct {
	Date  string   `yaml:"date"`
	Times []string `yaml:"times"`
}

// Slot is a (date, time) pair.
type Slot struct {
	Date string
	Time string
}

// String renders the slot as shown to participants.
func (s Slot) String() string {
	return s.Date + " " + s.Time
}

// Config is the YAML shape of a catalog.
type Config struct {
	Games    []Game `yaml:"games"`
	Days     []Day  `yaml:"days"`
	Capacity int    `yaml:"capacity"`
}

// Counter reports how many registrations a slot holds.
type Counter interface {
	CountForSlot(ctx context.Context, key registration.SlotKey) (int, error)
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	games    []Game
	slots    []Slot
	index    map[Slot]int
	capacity int
}

// Default returns the FinGames 2025 catalog.
func Default() Config {
	return Config{
		Games: []Game{
			{Name: "Купимания", Emoji: "🎲"},
			{Name: "Мир проектов", Emoji: "🌍"},
		},
		Days: []Day{
			{Date: "08.10.2025", Times: []string{"11:20-12:00", "15:50-16:30"}},
			{Date: "09.10.2025", Times: []string{"11:20-12:00", "15:50-16:30"}},
			{Date: "10.10.2025", Times: []string{"11:50-12:30", "13:50-14:30"}},
		},
		Capacity: registration.Capacity,
	}
}

// New validates cfg and builds a catalog. Games must be non-empty and unique,
// dates must parse as DD.MM.YYYY and slots must not repeat.
func New(cfg Config) (*Catalog, error) {
	if len(cfg.Games) == 0 {
		return nil, errors.New("catalog: at least one game is required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("catalog: capacity must be > 0, got %d", cfg.Capacity)
	}

	c := &Catalog{
		games:    make([]Game, 0, len(cfg.Games)),
		index:    make(map[Slot]int),
		capacity: cfg.Capacity,
	}
	seen := make(map[string]struct{}, len(cfg.Games))
	for _, g := range cfg.Games {
		g.Name = strings.TrimSpace(g.Name)
		if g.Name == "" {
			return nil, errors.New("catalog: game name must not be empty")
		}
		if _, dup := seen[g.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate game %q", g.Name)
		}
		seen[g.Name] = struct{}{}
		c.games = append(c.games, g)
	}

	for _, d := range cfg.Days {
		if _, err := time.Parse(dateLayout, d.Date); err != nil {
			return nil, fmt.Errorf("catalog: invalid date %q: %w", d.Date, err)
		}
		for _, tm := range d.Times {
			tm = strings.TrimSpace(tm)
			if tm == "" {
				return nil, fmt.Errorf("catalog: empty time on %s", d.Date)
			}
			s := Slot{Date: d.Date, Time: tm}
			if _, dup := c.index[s]; dup {
				return nil, fmt.Errorf("catalog: duplicate slot %s", s)
			}
			c.index[s] = len(c.slots)
			c.slots = append(c.slots, s)
		}
	}
	return c, nil
}

// MustDefault builds the default catalog and panics if it is invalid.
func MustDefault() *Catalog {
	c, err := New(Default())
	if err != nil {
		panic(err)
	}
	return c
}

// Games returns the games in declaration order.
func (c *Catalog) Games() []Game {
	return append([]Game(nil), c.games...)
}

// Game finds a game by name or by its button label.
func (c *Catalog) Game(text string) (Game, bool) {
	text = strings.TrimSpace(text)
	for _, g := range c.games {
		if text == g.Name || text == g.Label() {
			return g, true
		}
	}
	return Game{}, false
}

// Slots returns every slot in declaration order.
func (c *Catalog) Slots() []Slot {
	return append([]Slot(nil), c.slots...)
}

// HasSlots reports whether the catalog offers slots at all. Without slots a
// game choice registers immediately.
func (c *Catalog) HasSlots() bool {
	return len(c.slots) > 0
}

// Capacity is the per-slot participant limit.
func (c *Catalog) Capacity() int {
	return c.capacity
}

// Lookup finds a slot by date and time.
func (c *Catalog) Lookup(date, tm string) (Slot, bool) {
	s := Slot{Date: date, Time: tm}
	_, ok := c.index[s]
	return s, ok
}

// Index returns the catalog position of s, or -1 when s is not offered.
func (c *Catalog) Index(s Slot) int {
	if i, ok := c.index[s]; ok {
		return i
	}
	return -1
}

// AvailableSlots returns every slot whose current count for game is below
// capacity, in catalog order.
func (c *Catalog) AvailableSlots(ctx context.Context, game string, counter Counter) ([]Slot, error) {
	out := make([]Slot, 0, len(c.slots))
	for _, s := range c.slots {
		n, err := counter.CountForSlot(ctx, registration.SlotKey{Game: game, Date: s.Date, Time: s.Time})
		if err != nil {
			return nil, fmt.Errorf("count slot %s: %w", s, err)
		}
		if n < c.capacity {
			out = append(out, s)
		}
	}
	return out, nil
}
