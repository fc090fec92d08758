package registration

import "errors"

var (
	// ErrNotFound is returned when no registration matches the lookup.
	ErrNotFound = errors.New("registration not found")
	// ErrAlreadyUsed is returned when redeeming a voucher that was already redeemed.
	ErrAlreadyUsed = errors.New("voucher already used")
	// ErrDuplicateVoucher reports a storage-level voucher uniqueness violation.
	ErrDuplicateVoucher = errors.New("duplicate voucher code")
	// ErrDuplicateRegistration reports an existing registration for the same participant and game.
	ErrDuplicateRegistration = errors.New("participant already registered for this game")
	// ErrSlotFull reports that the chosen slot reached its capacity.
	ErrSlotFull = errors.New("slot is full")
	// ErrNoCapacity reports that a game has no slot left to offer.
	ErrNoCapacity = errors.New("no free slots left for this game")

	// ErrVoucherNotFound is the moderation-facing name of ErrNotFound.
	ErrVoucherNotFound = ErrNotFound
	// ErrAlreadyRedeemed is the moderation-facing name of ErrAlreadyUsed.
	ErrAlreadyRedeemed = ErrAlreadyUsed
)

// IsSoft reports whether err is an expected outcome that should be shown to the
// user rather than treated as a failure.
func IsSoft(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateRegistration),
		errors.Is(err, ErrSlotFull),
		errors.Is(err, ErrNoCapacity),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyUsed):
		return true
	default:
		return false
	}
}
