// Package moderation implements the staff-facing operations: listings,
// redemption, CSV export and fill statistics.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/registration"
	"github.com/m3rciful/fingames/internal/voucher"
)

// Entry is a registration as seen by staff.
type Entry struct {
	VoucherCode   string
	Game          string
	SlotDate      string
	SlotTime      string
	ParticipantID int64
	Participant   string
	CreatedAt     time.Time
	Status        string
}

// EntryFrom projects a registration into an Entry.
func EntryFrom(r registration.Registration) Entry {
	return Entry{
		VoucherCode:   r.VoucherCode,
		Game:          r.Game,
		SlotDate:      r.SlotDate,
		SlotTime:      r.SlotTime,
		ParticipantID: r.ParticipantID,
		Participant:   r.ParticipantName,
		CreatedAt:     r.CreatedAt,
		Status:        r.Status(),
	}
}

func entries(regs []registration.Registration) []Entry {
	out := make([]Entry, 0, len(regs))
	for _, r := range regs {
		out = append(out, EntryFrom(r))
	}
	return out
}

// RedeemListener observes successful redemptions.
type RedeemListener interface {
	Redeemed(ctx context.Context, reg registration.Registration)
}

// Service reads and updates registrations on behalf of moderators. Callers are
// responsible for checking the allow-list.
type Service struct {
	store     registration.Store
	catalog   *catalog.Catalog
	listeners []RedeemListener
	now       func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithRedeemListener registers an observer for redemptions.
func WithRedeemListener(l RedeemListener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// NewService returns a moderation service over store.
func NewService(store registration.Store, cat *catalog.Catalog, opts ...Option) *Service {
	s := &Service{store: store, catalog: cat, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every registration ordered by slot, then creation time.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	regs, err := s.store.ListAll(ctx, registration.OrderSlot)
	if err != nil {
		return nil, err
	}
	return entries(regs), nil
}

// ListActive returns registrations that were not redeemed yet.
func (s *Service) ListActive(ctx context.Context) ([]Entry, error) {
	regs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return entries(regs), nil
}

// Redeem marks the voucher used. Input is normalised first, so "fg-abc123"
// is accepted; malformed codes are reported as not found.
func (s *Service) Redeem(ctx context.Context, code string) (*registration.Registration, error) {
	code = voucher.Normalize(code)
	if !voucher.Valid(code) {
		return nil, registration.ErrVoucherNotFound
	}

	reg, err := s.store.MarkUsed(ctx, code)
	outcome := "ok"
	switch {
	case errors.Is(err, registration.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, registration.ErrAlreadyUsed):
		outcome = "already_used"
	case err != nil:
		return nil, fmt.Errorf("redeem %s: %w", code, err)
	}
	logger.SVCModeration.LogAttrs(ctx, slog.LevelInfo, "voucher.redeem",
		slog.String("voucher", code),
		slog.String("outcome", outcome),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
	if err != nil {
		return nil, err
	}
	for _, l := range s.listeners {
		l.Redeemed(ctx, *reg)
	}
	return reg, nil
}

// SlotStat is the fill level of one (game, slot) pair.
type SlotStat struct {
	Game     string
	Slot     catalog.Slot
	Taken    int
	Used     int
	Capacity int
}

// Stats summarises fill levels per game and slot in catalog order. Without
// slots configured, one line per game is returned with Capacity 0.
func (s *Service) Stats(ctx context.Context) ([]SlotStat, error) {
	regs, err := s.store.ListAll(ctx, registration.OrderCreated)
	if err != nil {
		return nil, err
	}
	type counts struct{ taken, used int }
	byKey := make(map[registration.SlotKey]counts)
	for _, r := range regs {
		c := byKey[r.Key()]
		c.taken++
		if r.Used {
			c.used++
		}
		byKey[r.Key()] = c
	}

	var out []SlotStat
	for _, g := range s.catalog.Games() {
		if !s.catalog.HasSlots() {
			c := byKey[registration.SlotKey{Game: g.Name}]
			out = append(out, SlotStat{Game: g.Name, Taken: c.taken, Used: c.used})
			continue
		}
		for _, slot := range s.catalog.Slots() {
			c := byKey[registration.SlotKey{Game: g.Name, Date: slot.Date, Time: slot.Time}]
			out = append(out, SlotStat{
				Game:     g.Name,
				Slot:     slot,
				Taken:    c.taken,
				Used:     c.used,
				Capacity: s.catalog.Capacity(),
			})
		}
	}
	return out, nil
}
