package registration

import (
	"sort"
	"time"
)

const slotDateLayout = "02.01.2006"

// slotDateValue parses a DD.MM.YYYY slot date; unparsable or empty dates sort last.
func slotDateValue(s string) (time.Time, bool) {
	t, err := time.Parse(slotDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Less reports whether a sorts before b under the given order.
func Less(a, b Registration, order Order) bool {
	if order == OrderSlot {
		ad, aok := slotDateValue(a.SlotDate)
		bd, bok := slotDateValue(b.SlotDate)
		switch {
		case aok && !bok:
			return true
		case !aok && bok:
			return false
		case aok && bok && !ad.Equal(bd):
			return ad.Before(bd)
		}
		if a.SlotTime != b.SlotTime {
			return a.SlotTime < b.SlotTime
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Sort orders regs in place.
func Sort(regs []Registration, order Order) {
	sort.SliceStable(regs, func(i, j int) bool { return Less(regs[i], regs[j], order) })
}
