// Package memory provides an in-memory AvailabilityStore keeping bookings in
// per-staff slices ordered by start time. It upholds the same conditional
// commit semantics as the Postgres store and backs tests and the dev-mode
// store driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/store"
)

type Store struct {
	mu       sync.Mutex
	staff    map[string]*domain.StaffMember
	perStaff map[string][]*domain.Booking // sorted by StartTime
	byID     map[uuid.UUID]*domain.Booking
}

func New() *Store {
	return &Store{
		staff:    make(map[string]*domain.StaffMember),
		perStaff: make(map[string][]*domain.Booking),
		byID:     make(map[uuid.UUID]*domain.Booking),
	}
}

func (s *Store) GetStaff(ctx context.Context, id string) (domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.staff[id]
	if !ok {
		return domain.StaffMember{}, store.ErrNotFound
	}
	return copyStaff(m), nil
}

func (s *Store) ListActiveStaff(ctx context.Context) ([]domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.StaffMember, 0, len(s.staff))
	for _, m := range s.staff {
		if m.Active {
			out = append(out, copyStaff(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBookings(ctx context.Context, staffID string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Booking
	for _, b := range s.perStaff[staffID] {
		if !b.Occupies() {
			continue
		}
		if b.StartTime.Before(windowEnd) && windowStart.Before(b.EndTime) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *Store) Commit(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staff, ok := s.staff[booking.StaffID]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}

	if booking.ID != uuid.Nil {
		if prev, ok := s.byID[booking.ID]; ok {
			if prev.StaffID != booking.StaffID ||
				prev.Service != booking.Service ||
				prev.CustomerName != booking.CustomerName ||
				prev.CustomerPhone != booking.CustomerPhone ||
				!prev.StartTime.Equal(booking.StartTime) ||
				!prev.EndTime.Equal(booking.EndTime) {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
			return *prev, nil
		}
	}

	// Conditional insert: I1 and I2 must still hold at commit time.
	if !staff.Active || !staff.WorksDuring(booking.StartTime, booking.EndTime) {
		return domain.Booking{}, store.ErrConflict
	}
	for _, b := range s.perStaff[booking.StaffID] {
		if !b.Occupies() {
			continue
		}
		if b.StartTime.Before(booking.EndTime) && booking.StartTime.Before(b.EndTime) {
			return domain.Booking{}, store.ErrConflict
		}
	}

	if booking.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Booking{}, err
		}
		booking.ID = id
	}
	now := time.Now().UTC()
	booking.Status = domain.BookingStatusConfirmed
	booking.CreatedAt = now
	booking.UpdatedAt = now

	stored := booking
	list := s.perStaff[booking.StaffID]
	idx := sort.Search(len(list), func(i int) bool {
		return list[i].StartTime.After(stored.StartTime)
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = &stored
	s.perStaff[booking.StaffID] = list
	s.byID[stored.ID] = &stored

	return booking, nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return domain.Booking{}, store.ErrNotFound
	}
	return *b, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkSynced(ctx context.Context, id uuid.UUID, providerEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	b.ProviderEventID = providerEventID
	b.Status = domain.BookingStatusConfirmed
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit int) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Booking
	for _, b := range s.byID {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.StaffMember) (domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.staff[staff.ID]; ok {
		return domain.StaffMember{}, store.ErrConflict
	}
	now := time.Now().UTC()
	staff.CreatedAt = now
	staff.UpdatedAt = now

	stored := copyStaff(&staff)
	s.staff[staff.ID] = &stored
	return staff, nil
}

func (s *Store) UpdateSchedule(ctx context.Context, staffID string, intervals []domain.WorkingInterval) (domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.staff[staffID]
	if !ok {
		return domain.StaffMember{}, store.ErrNotFound
	}
	m.WorkingIntervals = append([]domain.WorkingInterval(nil), intervals...)
	m.UpdatedAt = time.Now().UTC()
	return copyStaff(m), nil
}

func (s *Store) DeactivateStaff(ctx context.Context, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.staff[staffID]
	if !ok {
		return store.ErrNotFound
	}
	m.Active = false
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func copyStaff(m *domain.StaffMember) domain.StaffMember {
	out := *m
	out.WorkingIntervals = append([]domain.WorkingInterval(nil), m.WorkingIntervals...)
	return out
}
