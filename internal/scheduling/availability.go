package scheduling

import (
	"time"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlots expands the staff member's working intervals into bookable slots
// of slotLen within [from, to) and removes those intersecting an occupying
// booking. Slots are aligned to working-interval starts. The result is a
// preview only; Book remains the authority on whether a slot is available.
func FreeSlots(staff domain.StaffMember, bookings []domain.Booking, from, to time.Time, slotLen time.Duration) []Slot {
	if slotLen <= 0 || !to.After(from) || !staff.Active {
		return nil
	}
	from = from.UTC()
	to = to.UTC()

	var out []Slot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for ; day.Before(to); day = day.Add(24 * time.Hour) {
		for _, iv := range staff.WorkingIntervals {
			if iv.Weekday != day.Weekday() {
				continue
			}
			ivStart := day.Add(time.Duration(iv.StartMinute) * time.Minute)
			ivEnd := day.Add(time.Duration(iv.EndMinute) * time.Minute)

			for s := ivStart; !s.Add(slotLen).After(ivEnd); s = s.Add(slotLen) {
				e := s.Add(slotLen)
				if !s.Before(to) || !e.After(from) {
					continue
				}
				if _, booked := domain.FirstOverlap(bookings, s, e); booked {
					continue
				}
				out = append(out, Slot{Start: s, End: e})
			}
		}
	}
	return out
}
