package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/store"
)

// occupyingStatuses are the booking statuses that hold a slot. A booking
// whose calendar mirror failed still occupies its interval.
var occupyingStatuses = []domain.BookingStatus{
	domain.BookingStatusPending,
	domain.BookingStatusConfirmed,
	domain.BookingStatusSyncFailed,
}

type AvailabilityRepo struct {
	db *bun.DB
}

func NewAvailabilityRepo(db *bun.DB) *AvailabilityRepo {
	return &AvailabilityRepo{db: db}
}

func (r *AvailabilityRepo) GetStaff(ctx context.Context, id string) (domain.StaffMember, error) {
	var m domain.StaffMember
	err := r.db.NewSelect().
		Model(&m).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StaffMember{}, store.ErrNotFound
	}
	if err != nil {
		return domain.StaffMember{}, err
	}
	return m, nil
}

func (r *AvailabilityRepo) ListActiveStaff(ctx context.Context) ([]domain.StaffMember, error) {
	var rows []domain.StaffMember
	err := r.db.NewSelect().
		Model(&rows).
		Where("active").
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AvailabilityRepo) ListBookings(ctx context.Context, staffID string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := r.db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("status IN (?)", bun.In(occupyingStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Commit inserts the booking inside a transaction that holds the staff
// member's advisory lock, re-checking both invariants under the lock. The
// bookings_no_overlap exclusion constraint backstops the overlap check
// against writers that bypass the lock.
func (r *AvailabilityRepo) Commit(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	var out domain.Booking
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockStaffCalendar(ctx, tx, booking.StaffID); err != nil {
			return err
		}
		b, err := staffTx{tx: tx}.commitBooking(ctx, booking)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (r *AvailabilityRepo) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *AvailabilityRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Booking)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AvailabilityRepo) MarkSynced(ctx context.Context, id uuid.UUID, providerEventID string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Booking)(nil)).
		Set("provider_event_id = ?", providerEventID).
		Set("status = ?", domain.BookingStatusConfirmed).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AvailabilityRepo) ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit int) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", status).
		OrderExpr("start_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AvailabilityRepo) CreateStaff(ctx context.Context, staff domain.StaffMember) (domain.StaffMember, error) {
	_, err := r.db.NewInsert().Model(&staff).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.StaffMember{}, store.ErrConflict
		}
		return domain.StaffMember{}, err
	}
	return staff, nil
}

func (r *AvailabilityRepo) UpdateSchedule(ctx context.Context, staffID string, intervals []domain.WorkingInterval) (domain.StaffMember, error) {
	m := domain.StaffMember{ID: staffID, WorkingIntervals: intervals}
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("working_intervals", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.StaffMember{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.StaffMember{}, err
	}
	return r.GetStaff(ctx, staffID)
}

func (r *AvailabilityRepo) DeactivateStaff(ctx context.Context, staffID string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.StaffMember)(nil)).
		Set("active = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", staffID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// lockStaffCalendar serializes booking commits per staff member across all
// server instances sharing the database.
func lockStaffCalendar(ctx context.Context, tx bun.Tx, staffID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", staffID).Exec(ctx)
	return err
}

type staffTx struct {
	tx bun.Tx
}

func (t staffTx) commitBooking(ctx context.Context, booking domain.Booking) (domain.Booking, error) {
	// A pre-assigned ID means an idempotent request: a replay returns the
	// original booking instead of tripping the overlap check on itself.
	if booking.ID != uuid.Nil {
		var existing domain.Booking
		err := t.tx.NewSelect().
			Model(&existing).
			Where("id = ?", booking.ID).
			Scan(ctx)
		if err == nil {
			return matchIdempotent(existing, booking)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, err
		}
	}

	var staff domain.StaffMember
	err := t.tx.NewSelect().
		Model(&staff).
		Where("id = ?", booking.StaffID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	if !staff.Active || !staff.WorksDuring(booking.StartTime, booking.EndTime) {
		return domain.Booking{}, store.ErrConflict
	}

	exists, err := t.tx.NewSelect().
		Model((*domain.Booking)(nil)).
		Where("staff_id = ?", booking.StaffID).
		Where("status IN (?)", bun.In(occupyingStatuses)).
		Where("start_time < ?", booking.EndTime).
		Where("end_time > ?", booking.StartTime).
		Exists(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	if exists {
		return domain.Booking{}, store.ErrConflict
	}

	m := booking
	m.Status = domain.BookingStatusConfirmed
	_, err = t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23P01" && pgErr.ConstraintName == "bookings_no_overlap" {
				return domain.Booking{}, store.ErrConflict
			}
			if pgErr.Code == "23505" {
				return t.resolveIdempotentInsert(ctx, booking, err)
			}
		}
		return domain.Booking{}, err
	}
	return m, nil
}

// resolveIdempotentInsert handles a duplicate primary key that raced past the
// replay lookup above.
func (t staffTx) resolveIdempotentInsert(ctx context.Context, booking domain.Booking, insertErr error) (domain.Booking, error) {
	var existing domain.Booking
	err := t.tx.NewSelect().
		Model(&existing).
		Where("id = ?", booking.ID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, insertErr
	}
	return matchIdempotent(existing, booking)
}

// matchIdempotent compares a stored booking with a replayed request sharing
// its ID: an exact replay returns the original, a different request reusing
// the key is rejected.
func matchIdempotent(existing, booking domain.Booking) (domain.Booking, error) {
	if existing.StaffID != booking.StaffID ||
		existing.Service != booking.Service ||
		existing.CustomerName != booking.CustomerName ||
		existing.CustomerPhone != booking.CustomerPhone ||
		!existing.StartTime.Equal(booking.StartTime) ||
		!existing.EndTime.Equal(booking.EndTime) {
		return domain.Booking{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
