package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusSyncFailed BookingStatus = "sync_failed"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID              uuid.UUID     `bun:"id,pk,type:uuid"`
	StaffID         string        `bun:"staff_id,notnull"`
	Service         string        `bun:"service,notnull"`
	CustomerName    string        `bun:"customer_name,notnull"`
	CustomerPhone   string        `bun:"customer_phone"`
	StartTime       time.Time     `bun:"start_time,notnull"`
	EndTime         time.Time     `bun:"end_time,notnull"`
	Status          BookingStatus `bun:"status,notnull"`
	ProviderEventID string        `bun:"provider_event_id"`
	CreatedAt       time.Time     `bun:"created_at,notnull"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

// Occupies reports whether the booking still holds its time slot. A booking
// whose calendar mirror failed keeps the slot: the store is the source of
// truth and the external calendar is best-effort.
func (b *Booking) Occupies() bool {
	switch b.Status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusSyncFailed:
		return true
	default:
		return false
	}
}

// FirstOverlap returns the earliest-starting booking in bookings (assumed
// sorted by start time) that occupies its slot and intersects the half-open
// interval [start, end).
func FirstOverlap(bookings []Booking, start, end time.Time) (Booking, bool) {
	for _, b := range bookings {
		if !b.Occupies() {
			continue
		}
		if b.StartTime.Before(end) && start.Before(b.EndTime) {
			return b, true
		}
	}
	return Booking{}, false
}

// BookingRequest is the ephemeral input to the scheduler. It is never
// persisted until a booking is committed from it. An empty StaffID means
// "any available staff member".
type BookingRequest struct {
	StaffID        string
	Service        string
	StartTime      time.Time
	EndTime        time.Time
	CustomerName   string
	CustomerPhone  string
	IdempotencyKey string
}
