// Package events publishes registration lifecycle events for downstream
// consumers such as reporting or badge printing.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/fingames/internal/registration"
)

// Event types, also used as routing keys.
const (
	TypeRegistrationCreated  = "registration.created"
	TypeRegistrationRedeemed = "registration.redeemed"
)

// Event is the JSON payload sent to the broker.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	RegistrationID int64     `json:"registration_id"`
	ParticipantID  int64     `json:"participant_id"`
	Game           string    `json:"game"`
	SlotDate       string    `json:"slot_date,omitempty"`
	SlotTime       string    `json:"slot_time,omitempty"`
	VoucherCode    string    `json:"voucher_code"`
}

// NewEvent builds an event of the given type for reg.
func NewEvent(typ string, reg registration.Registration, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		OccurredAt:     at.UTC(),
		RegistrationID: reg.ID,
		ParticipantID:  reg.ParticipantID,
		Game:           reg.Game,
		SlotDate:       reg.SlotDate,
		SlotTime:       reg.SlotTime,
		VoucherCode:    reg.VoucherCode,
	}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
