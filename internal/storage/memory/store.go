// Package memory is an in-process registration store used in development mode
// and tests. It keeps the same guarantees as the Postgres store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/fingames/internal/registration"
)

type participantGame struct {
	participantID int64
	game          string
}

// Store guards all records with a single mutex, which also serializes the
// capacity check and insert of InsertWithinCapacity.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	rows      []*registration.Registration
	byVoucher map[string]*registration.Registration
	byOwner   map[participantGame]*registration.Registration
	now       func() time.Time
}

// Option customises the store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt and UsedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byVoucher: make(map[string]*registration.Registration),
		byOwner:   make(map[participantGame]*registration.Registration),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ registration.Store = (*Store)(nil)

func clone(r *registration.Registration) *registration.Registration {
	cp := *r
	if r.UsedAt != nil {
		t := *r.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}

// FindByParticipantAndGame returns registration.ErrNotFound when the
// participant holds no registration for game.
func (s *Store) FindByParticipantAndGame(_ context.Context, participantID int64, game string) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byOwner[participantGame{participantID, game}]
	if !ok {
		return nil, registration.ErrNotFound
	}
	return clone(r), nil
}

// ListByParticipant returns the participant's registrations, oldest first.
func (s *Store) ListByParticipant(_ context.Context, participantID int64) ([]registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []registration.Registration
	for _, r := range s.rows {
		if r.ParticipantID == participantID {
			out = append(out, *clone(r))
		}
	}
	registration.Sort(out, registration.OrderCreated)
	return out, nil
}

func (s *Store) countLocked(key registration.SlotKey) int {
	n := 0
	for _, r := range s.rows {
		if r.Key() == key {
			n++
		}
	}
	return n
}

// CountForSlot counts registrations in one (game, date, time) slot.
func (s *Store) CountForSlot(_ context.Context, key registration.SlotKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(key), nil
}

func (s *Store) insertLocked(reg registration.Registration) (*registration.Registration, error) {
	if _, dup := s.byVoucher[reg.VoucherCode]; dup {
		return nil, registration.ErrDuplicateVoucher
	}
	owner := participantGame{reg.ParticipantID, reg.Game}
	if _, dup := s.byOwner[owner]; dup {
		return nil, registration.ErrDuplicateRegistration
	}
	s.nextID++
	reg.ID = s.nextID
	reg.CreatedAt = s.now()
	reg.Used = false
	reg.UsedAt = nil

	row := &reg
	s.rows = append(s.rows, row)
	s.byVoucher[reg.VoucherCode] = row
	s.byOwner[owner] = row
	return clone(row), nil
}

// Insert stores reg, enforcing the same uniqueness rules as the database.
func (s *Store) Insert(_ context.Context, reg registration.Registration) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(reg)
}

// InsertWithinCapacity counts and inserts under the store mutex.
func (s *Store) InsertWithinCapacity(_ context.Context, reg registration.Registration, capacity int) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countLocked(reg.Key()) >= capacity {
		return nil, registration.ErrSlotFull
	}
	return s.insertLocked(reg)
}

// FindByVoucherCode returns registration.ErrNotFound for unknown codes.
func (s *Store) FindByVoucherCode(_ context.Context, code string) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byVoucher[code]
	if !ok {
		return nil, registration.ErrNotFound
	}
	return clone(r), nil
}

// VoucherExists reports whether code is already assigned.
func (s *Store) VoucherExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byVoucher[code]
	return ok, nil
}

func (s *Store) list(filter func(*registration.Registration) bool, order registration.Order) []registration.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registration.Registration, 0, len(s.rows))
	for _, r := range s.rows {
		if filter == nil || filter(r) {
			out = append(out, *clone(r))
		}
	}
	registration.Sort(out, order)
	return out
}

// ListAll returns every registration in the requested order.
func (s *Store) ListAll(_ context.Context, order registration.Order) ([]registration.Registration, error) {
	return s.list(nil, order), nil
}

// ListActive returns unredeemed registrations in slot order.
func (s *Store) ListActive(_ context.Context) ([]registration.Registration, error) {
	return s.list(func(r *registration.Registration) bool { return !r.Used }, registration.OrderSlot), nil
}

// MarkUsed flips used once; a second call reports registration.ErrAlreadyUsed.
func (s *Store) MarkUsed(_ context.Context, code string) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byVoucher[code]
	if !ok {
		return nil, registration.ErrNotFound
	}
	if r.Used {
		return nil, registration.ErrAlreadyUsed
	}
	now := s.now()
	r.Used = true
	r.UsedAt = &now
	return clone(r), nil
}
