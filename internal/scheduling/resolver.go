package scheduling

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

type ConflictKind string

const (
	ConflictInvalidInterval     ConflictKind = "invalid_interval"
	ConflictStaffUnknown        ConflictKind = "staff_unknown"
	ConflictOutsideWorkingHours ConflictKind = "outside_working_hours"
	ConflictOverlap             ConflictKind = "overlap"
)

// ConflictError is a terminal booking rejection. It is returned to the
// caller with its specific reason and is never retried by the system.
type ConflictError struct {
	Kind ConflictKind

	// ConflictingBookingID is set for ConflictOverlap when the earliest
	// conflicting booking is known.
	ConflictingBookingID uuid.UUID
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictInvalidInterval:
		return "end time must be after start time"
	case ConflictStaffUnknown:
		return "unknown or inactive staff member"
	case ConflictOutsideWorkingHours:
		return "requested time is outside working hours"
	case ConflictOverlap:
		if e.ConflictingBookingID != uuid.Nil {
			return fmt.Sprintf("slot already booked by %s", e.ConflictingBookingID)
		}
		return "slot already booked"
	default:
		return string(e.Kind)
	}
}

// Evaluate decides whether the request may be booked against the given staff
// member and their existing bookings (sorted by start time). It is pure:
// the same inputs always yield the same decision. A nil result is an accept.
func Evaluate(req domain.BookingRequest, staff domain.StaffMember, existing []domain.Booking) *ConflictError {
	start := req.StartTime.UTC()
	end := req.EndTime.UTC()

	if start.IsZero() || end.IsZero() || !end.After(start) {
		return &ConflictError{Kind: ConflictInvalidInterval}
	}
	if !staff.Active {
		return &ConflictError{Kind: ConflictStaffUnknown}
	}
	if !staff.WorksDuring(start, end) {
		return &ConflictError{Kind: ConflictOutsideWorkingHours}
	}
	if b, ok := domain.FirstOverlap(existing, start, end); ok {
		return &ConflictError{Kind: ConflictOverlap, ConflictingBookingID: b.ID}
	}
	return nil
}
