// Package registration defines the registration record, the store contract and
// the error taxonomy shared by the workflow and moderation layers.
package registration

import (
	"context"
	"time"
)

// Capacity is the default number of participants a single slot admits.
const Capacity = 4

// Status labels shown to moderators and written to exports.
const (
	StatusActive = "active"
	StatusUsed   = "used"
)

// Registration is a participant's booking of one game, optionally at a slot.
type Registration struct {
	ID              int64      `db:"id"`
	ParticipantID   int64      `db:"participant_id"`
	ParticipantName string     `db:"participant_name"`
	Game            string     `db:"game"`
	SlotDate        string     `db:"slot_date"`
	SlotTime        string     `db:"slot_time"`
	VoucherCode     string     `db:"voucher_code"`
	CreatedAt       time.Time  `db:"created_at"`
	Used            bool       `db:"used"`
	UsedAt          *time.Time `db:"used_at"`
}

// Status returns the moderator-facing status label.
func (r Registration) Status() string {
	if r.Used {
		return StatusUsed
	}
	return StatusActive
}

// HasSlot reports whether the registration carries a slot.
func (r Registration) HasSlot() bool {
	return r.SlotDate != "" || r.SlotTime != ""
}

// SlotKey identifies a (game, date, time) capacity bucket.
type SlotKey struct {
	Game string
	Date string
	Time string
}

// Key returns the capacity bucket the registration belongs to.
func (r Registration) Key() SlotKey {
	return SlotKey{Game: r.Game, Date: r.SlotDate, Time: r.SlotTime}
}

// Order selects the ordering of ListAll.
type Order int

const (
	// OrderCreated sorts by creation time, then id.
	OrderCreated Order = iota
	// OrderSlot sorts by slot date, slot time, then creation time.
	OrderSlot
)

// Store is the persisted collection of registrations. Every method is a single
// atomic unit against the underlying storage.
type Store interface {
	FindByParticipantAndGame(ctx context.Context, participantID int64, game string) (*Registration, error)
	ListByParticipant(ctx context.Context, participantID int64) ([]Registration, error)
	CountForSlot(ctx context.Context, key SlotKey) (int, error)
	Insert(ctx context.Context, reg Registration) (*Registration, error)
	// InsertWithinCapacity counts and inserts under a per-slot critical section
	// and fails with ErrSlotFull once the slot holds capacity registrations.
	InsertWithinCapacity(ctx context.Context, reg Registration, capacity int) (*Registration, error)
	FindByVoucherCode(ctx context.Context, code string) (*Registration, error)
	VoucherExists(ctx context.Context, code string) (bool, error)
	ListAll(ctx context.Context, order Order) ([]Registration, error)
	ListActive(ctx context.Context) ([]Registration, error)
	MarkUsed(ctx context.Context, code string) (*Registration, error)
}
