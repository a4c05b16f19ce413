package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Dispatcher receives committed bookings for asynchronous calendar sync.
// Enqueue must not block; it reports whether the booking was accepted.
type Dispatcher interface {
	Enqueue(booking domain.Booking) bool
}

// Manager serializes booking attempts per staff member so that concurrent
// requests for the same staff cannot both observe "no conflict" and both
// commit. Requests for different staff proceed fully in parallel. It is the
// sole writer of booking status transitions.
type Manager struct {
	store      store.AvailabilityStore
	locks      *lockArena
	dispatcher Dispatcher
	log        *slog.Logger

	// bounded retry for transient store failures
	storeRetries uint64
	retryInitial time.Duration
}

func NewManager(st store.AvailabilityStore, dispatcher Dispatcher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:        st,
		locks:        newLockArena(),
		dispatcher:   dispatcher,
		log:          log.With(slog.String("component", "scheduling.manager")),
		storeRetries: 2,
		retryInitial: 100 * time.Millisecond,
	}
}

// Book decides the request and, on accept, commits the booking and enqueues
// a calendar-sync job. Rejections carry a *ConflictError with the specific
// reason; they are terminal and never retried here.
func (m *Manager) Book(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	req.StartTime = req.StartTime.UTC()
	req.EndTime = req.EndTime.UTC()

	// Interval validity is checked before any store access.
	if req.StartTime.IsZero() || req.EndTime.IsZero() || !req.EndTime.After(req.StartTime) {
		return domain.Booking{}, &ConflictError{Kind: ConflictInvalidInterval}
	}
	if strings.TrimSpace(req.Service) == "" {
		return domain.Booking{}, validationError("service is required")
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return domain.Booking{}, validationError("customer name is required")
	}
	if len(req.IdempotencyKey) > 256 {
		return domain.Booking{}, validationError("idempotency key too long")
	}

	candidates, err := m.candidateStaffIDs(ctx, req)
	if err != nil {
		return domain.Booking{}, err
	}
	if len(candidates) == 0 {
		return domain.Booking{}, &ConflictError{Kind: ConflictStaffUnknown}
	}

	var firstReject *ConflictError
	for _, staffID := range candidates {
		booking, err := m.tryBook(ctx, staffID, req)
		if err == nil {
			m.dispatchSync(ctx, booking)
			return booking, nil
		}

		var cErr *ConflictError
		if errors.As(err, &cErr) {
			if firstReject == nil || firstReject.Kind == ConflictStaffUnknown {
				firstReject = cErr
			}
			continue
		}
		return domain.Booking{}, err
	}
	return domain.Booking{}, firstReject
}

func (m *Manager) candidateStaffIDs(ctx context.Context, req domain.BookingRequest) ([]string, error) {
	if req.StaffID != "" {
		return []string{req.StaffID}, nil
	}

	var staff []domain.StaffMember
	err := m.withRetry(ctx, func() error {
		var err error
		staff, err = m.store.ListActiveStaff(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}

	ids := make([]string, 0, len(staff))
	for _, s := range staff {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// tryBook runs the read-evaluate-commit sequence inside the per-staff
// critical section. If the store reports a commit conflict that the
// evaluation did not see, it re-evaluates once against fresh data before
// surfacing failure.
func (m *Manager) tryBook(ctx context.Context, staffID string, req domain.BookingRequest) (domain.Booking, error) {
	release, err := m.locks.acquire(ctx, staffID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("waiting for staff %s: %w", staffID, err)
	}
	defer release()

	// A client-supplied idempotency key pins the booking ID so that the
	// store can recognize a replayed request.
	var idempotentID uuid.UUID
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		idempotentID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("booking-agent:book:"+staffID+":"+key))
	}

	for attempt := 0; attempt < 2; attempt++ {
		var staff domain.StaffMember
		err := m.withRetry(ctx, func() error {
			var err error
			staff, err = m.store.GetStaff(ctx, staffID)
			return err
		})
		if errors.Is(err, store.ErrNotFound) {
			return domain.Booking{}, &ConflictError{Kind: ConflictStaffUnknown}
		}
		if err != nil {
			return domain.Booking{}, fmt.Errorf("get staff: %w", err)
		}

		var existing []domain.Booking
		err = m.withRetry(ctx, func() error {
			var err error
			existing, err = m.store.ListBookings(ctx, staffID, req.StartTime, req.EndTime)
			return err
		})
		if err != nil {
			return domain.Booking{}, fmt.Errorf("list bookings: %w", err)
		}

		// A replayed request must not collide with its own earlier commit,
		// so the evaluation skips the booking carrying the idempotent ID.
		// The store resolves the replay at commit time.
		if cErr := Evaluate(req, staff, withoutBooking(existing, idempotentID)); cErr != nil {
			return domain.Booking{}, cErr
		}

		booking := domain.Booking{
			ID:            idempotentID,
			StaffID:       staffID,
			Service:       strings.TrimSpace(req.Service),
			CustomerName:  strings.TrimSpace(req.CustomerName),
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			StartTime:     req.StartTime,
			EndTime:       req.EndTime,
			Status:        domain.BookingStatusPending,
		}

		var committed domain.Booking
		err = m.withRetry(ctx, func() error {
			var err error
			committed, err = m.store.Commit(ctx, booking)
			return err
		})
		if errors.Is(err, store.ErrConflict) {
			// A concurrent write slipped past the evaluation, e.g. through
			// another store instance. One more pass over fresh data.
			continue
		}
		if err != nil {
			return domain.Booking{}, fmt.Errorf("commit: %w", err)
		}

		m.log.Info("booking committed",
			slog.String("booking_id", committed.ID.String()),
			slog.String("staff_id", staffID),
			slog.Time("start_time", committed.StartTime),
			slog.Time("end_time", committed.EndTime),
		)
		return committed, nil
	}

	// Both evaluation passes accepted yet both commits conflicted. Hand the
	// earliest conflict on record back to the caller.
	if b, ok := m.freshConflict(ctx, staffID, req); ok {
		return domain.Booking{}, &ConflictError{Kind: ConflictOverlap, ConflictingBookingID: b.ID}
	}
	return domain.Booking{}, &ConflictError{Kind: ConflictOverlap}
}

func withoutBooking(bookings []domain.Booking, id uuid.UUID) []domain.Booking {
	if id == uuid.Nil {
		return bookings
	}
	out := bookings[:0:0]
	for _, b := range bookings {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

func (m *Manager) freshConflict(ctx context.Context, staffID string, req domain.BookingRequest) (domain.Booking, bool) {
	existing, err := m.store.ListBookings(ctx, staffID, req.StartTime, req.EndTime)
	if err != nil {
		return domain.Booking{}, false
	}
	return domain.FirstOverlap(existing, req.StartTime, req.EndTime)
}

// Cancel transitions a booking to cancelled, freeing its slot. Cancelling a
// booking that is already cancelled is a no-op.
func (m *Manager) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := m.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	release, err := m.locks.acquire(ctx, booking.StaffID)
	if err != nil {
		return fmt.Errorf("waiting for staff %s: %w", booking.StaffID, err)
	}
	defer release()

	if booking.Status == domain.BookingStatusCancelled {
		return nil
	}
	if err := m.store.UpdateStatus(ctx, bookingID, domain.BookingStatusCancelled); err != nil {
		return err
	}
	m.log.Info("booking cancelled",
		slog.String("booking_id", bookingID.String()),
		slog.String("staff_id", booking.StaffID),
	)
	return nil
}

// dispatchSync hands the booking to the calendar syncer after the critical
// section is released. A booking the queue cannot take is marked sync_failed
// so the periodic re-sync sweep finds it; the booking keeps its slot either
// way.
func (m *Manager) dispatchSync(ctx context.Context, booking domain.Booking) {
	if m.dispatcher == nil {
		return
	}
	if m.dispatcher.Enqueue(booking) {
		return
	}
	m.log.Warn("calendar sync queue full; deferring to re-sync sweep",
		slog.String("booking_id", booking.ID.String()),
		slog.String("staff_id", booking.StaffID),
	)
	// The transition must be recorded even if the caller is gone.
	if err := m.store.UpdateStatus(context.WithoutCancel(ctx), booking.ID, domain.BookingStatusSyncFailed); err != nil {
		m.log.Error("mark sync_failed failed",
			slog.Any("err", err),
			slog.String("booking_id", booking.ID.String()),
		)
	}
}

func (m *Manager) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retryInitial
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrConflict) ||
			errors.Is(err, store.ErrNotFound) ||
			errors.Is(err, store.ErrIdempotencyConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, m.storeRetries), ctx))
}
