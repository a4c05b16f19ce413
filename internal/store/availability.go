package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

// AvailabilityStore is the durable record of staff, their working hours and
// committed bookings. The scheduling transaction manager is its sole writer
// for booking commits and status transitions.
type AvailabilityStore interface {
	GetStaff(ctx context.Context, id string) (domain.StaffMember, error)
	ListActiveStaff(ctx context.Context) ([]domain.StaffMember, error)

	// ListBookings returns the bookings for staffID that still occupy a
	// slot and intersect [windowStart, windowEnd), ordered by start time.
	ListBookings(ctx context.Context, staffID string, windowStart, windowEnd time.Time) ([]domain.Booking, error)

	// Commit atomically inserts the booking provided no occupying booking
	// for the same staff member overlaps it and the staff member is still
	// active; otherwise it returns ErrConflict. A reused idempotent ID
	// returns the previously committed booking.
	Commit(ctx context.Context, booking domain.Booking) (domain.Booking, error)

	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error

	// MarkSynced records the provider event ID for a pushed booking and
	// restores its status to confirmed.
	MarkSynced(ctx context.Context, id uuid.UUID, providerEventID string) error
	ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit int) ([]domain.Booking, error)
}

// StaffDirectory manages the staff roster. Staff referenced by bookings are
// never deleted; DeactivateStaff soft-deactivates instead.
type StaffDirectory interface {
	CreateStaff(ctx context.Context, staff domain.StaffMember) (domain.StaffMember, error)
	UpdateSchedule(ctx context.Context, staffID string, intervals []domain.WorkingInterval) (domain.StaffMember, error)
	DeactivateStaff(ctx context.Context, staffID string) error
	GetStaff(ctx context.Context, id string) (domain.StaffMember, error)
}
