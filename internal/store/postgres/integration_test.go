package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/kb"
	"github.com/ssaillesh/Booking-agent/internal/store"
)

// openTestDB connects with a single-connection pool and points it at a fresh
// throwaway schema, so SET search_path sticks for every operation including
// transactional commits.
func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("BOOKING_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("BOOKING_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "booking_test_" + randomHex(t, 8)
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestPostgresIntegration_CommitOverlapAndIdempotency(t *testing.T) {
	db := openTestDB(t)
	repo := NewAvailabilityRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 2026-01-05 is a Monday.
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	_, err := repo.CreateStaff(ctx, domain.StaffMember{
		ID:          "alice",
		DisplayName: "Alice",
		Active:      true,
		WorkingIntervals: []domain.WorkingInterval{
			{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
	})
	if err != nil {
		t.Fatalf("CreateStaff: %v", err)
	}

	first, err := repo.Commit(ctx, domain.Booking{
		StaffID:      "alice",
		Service:      "haircut",
		CustomerName: "Pat",
		StartTime:    start,
		EndTime:      end,
		Status:       domain.BookingStatusPending,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first.ID == uuid.Nil || first.Status != domain.BookingStatusConfirmed {
		t.Fatalf("committed booking: %+v", first)
	}

	_, err = repo.Commit(ctx, domain.Booking{
		StaffID:      "alice",
		Service:      "haircut",
		CustomerName: "Sam",
		StartTime:    start.Add(30 * time.Minute),
		EndTime:      end.Add(30 * time.Minute),
		Status:       domain.BookingStatusPending,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	backToBack, err := repo.Commit(ctx, domain.Booking{
		StaffID:      "alice",
		Service:      "haircut",
		CustomerName: "Sam",
		StartTime:    end,
		EndTime:      end.Add(time.Hour),
		Status:       domain.BookingStatusPending,
	})
	if err != nil {
		t.Fatalf("back-to-back Commit: %v", err)
	}

	rows, err := repo.ListBookings(ctx, "alice", start.Add(-time.Minute), end.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != first.ID || rows[1].ID != backToBack.ID {
		t.Fatalf("listing = %+v", rows)
	}

	// Idempotent replay returns the original; a different request reusing
	// the ID is rejected.
	idempotent := domain.Booking{
		ID:           uuid.MustParse("00000000-0000-0000-0000-000000000901"),
		StaffID:      "alice",
		Service:      "haircut",
		CustomerName: "Kim",
		StartTime:    end.Add(time.Hour),
		EndTime:      end.Add(2 * time.Hour),
		Status:       domain.BookingStatusPending,
	}
	if _, err := repo.Commit(ctx, idempotent); err != nil {
		t.Fatalf("idempotent Commit: %v", err)
	}
	replay, err := repo.Commit(ctx, idempotent)
	if err != nil {
		t.Fatalf("replayed Commit: %v", err)
	}
	if replay.ID != idempotent.ID {
		t.Fatalf("replay id = %v", replay.ID)
	}
	idempotent.CustomerName = "Someone Else"
	if _, err := repo.Commit(ctx, idempotent); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
	}
	idempotent.CustomerName = "Kim"
	idempotent.CustomerPhone = "+15550199"
	if _, err := repo.Commit(ctx, idempotent); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("changed-phone idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	// Cancelling frees the slot for a new booking.
	if err := repo.UpdateStatus(ctx, first.ID, domain.BookingStatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := repo.Commit(ctx, domain.Booking{
		StaffID:      "alice",
		Service:      "haircut",
		CustomerName: "Sam",
		StartTime:    start,
		EndTime:      end,
		Status:       domain.BookingStatusPending,
	}); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestPostgresIntegration_SyncStatusTransitions(t *testing.T) {
	db := openTestDB(t)
	repo := NewAvailabilityRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := repo.CreateStaff(ctx, domain.StaffMember{
		ID:     "bob",
		Active: true,
		WorkingIntervals: []domain.WorkingInterval{
			{Weekday: time.Monday, StartMinute: 0, EndMinute: 24 * 60},
		},
	})
	if err != nil {
		t.Fatalf("CreateStaff: %v", err)
	}

	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	b, err := repo.Commit(ctx, domain.Booking{
		StaffID:      "bob",
		Service:      "trim",
		CustomerName: "Pat",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Status:       domain.BookingStatusPending,
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := repo.UpdateStatus(ctx, b.ID, domain.BookingStatusSyncFailed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	failed, err := repo.ListBookingsByStatus(ctx, domain.BookingStatusSyncFailed, 10)
	if err != nil {
		t.Fatalf("ListBookingsByStatus: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != b.ID {
		t.Fatalf("sync_failed listing = %+v", failed)
	}

	// A sync_failed booking still blocks its slot.
	_, err = repo.Commit(ctx, domain.Booking{
		StaffID:      "bob",
		Service:      "trim",
		CustomerName: "Sam",
		StartTime:    start.Add(30 * time.Minute),
		EndTime:      start.Add(90 * time.Minute),
		Status:       domain.BookingStatusPending,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("overlap with sync_failed err = %v, want %v", err, store.ErrConflict)
	}

	if err := repo.MarkSynced(ctx, b.ID, "evt123"); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	got, err := repo.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Status != domain.BookingStatusConfirmed || got.ProviderEventID != "evt123" {
		t.Fatalf("after MarkSynced: %+v", got)
	}
}

func TestPostgresIntegration_KBSearch(t *testing.T) {
	db := openTestDB(t)
	repo := NewKBRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	articles := []kb.Article{
		{Title: "Cancellation policy", Content: "Appointments can be cancelled up to 24 hours in advance without charge."},
		{Title: "Opening hours", Content: "We are open Monday to Saturday from 9am to 5pm."},
	}
	for _, a := range articles {
		if _, err := repo.Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert %q: %v", a.Title, err)
		}
	}

	results, err := repo.Search(ctx, "cancel an appointment", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].Title != "Cancellation policy" {
		t.Fatalf("results = %+v", results)
	}

	// Upsert by title replaces the content in place.
	updated, err := repo.Upsert(ctx, kb.Article{Title: "Opening hours", Content: "We are open every day from 8am to 8pm."})
	if err != nil {
		t.Fatalf("replace Upsert: %v", err)
	}
	if !strings.Contains(updated.Content, "8am") {
		t.Fatalf("replaced article = %+v", updated)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")
	if downIdx := strings.Index(afterUp, downMarker); downIdx >= 0 {
		afterUp = afterUp[:downIdx]
	}
	return strings.TrimSpace(afterUp), nil
}

// normalizeExtensionStatement pins btree_gist into public so per-test schemas
// do not race over installing it.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") || !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
