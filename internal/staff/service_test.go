package staff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ssaillesh/Booking-agent/internal/domain"
	"github.com/ssaillesh/Booking-agent/internal/store"
	"github.com/ssaillesh/Booking-agent/internal/store/memory"
)

func workweek() []domain.WorkingInterval {
	return []domain.WorkingInterval{
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
}

func TestCreateStaff(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		ID:               "alice",
		DisplayName:      "  Alice  ",
		WorkingIntervals: workweek(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.DisplayName != "Alice" || !created.Active {
		t.Fatalf("unexpected staff: %+v", created)
	}

	got, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "alice" {
		t.Fatalf("Get returned %+v", got)
	}
}

func TestCreateStaffGeneratesID(t *testing.T) {
	svc := NewService(memory.New())

	created, err := svc.Create(context.Background(), CreateInput{DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := uuid.Parse(created.ID); err != nil {
		t.Fatalf("generated ID %q is not a UUID: %v", created.ID, err)
	}
}

func TestCreateStaffValidation(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"missing display name", CreateInput{ID: "x"}},
		{"overlapping intervals", CreateInput{
			DisplayName: "Carol",
			WorkingIntervals: []domain.WorkingInterval{
				{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
				{Weekday: time.Monday, StartMinute: 11 * 60, EndMinute: 14 * 60},
			},
		}},
		{"inverted interval", CreateInput{
			DisplayName: "Carol",
			WorkingIntervals: []domain.WorkingInterval{
				{Weekday: time.Monday, StartMinute: 12 * 60, EndMinute: 9 * 60},
			},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateStaffDuplicateID(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	in := CreateInput{ID: "alice", DisplayName: "Alice", WorkingIntervals: workweek()}
	if _, err := svc.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, in); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate ID, got %v", err)
	}
}

func TestUpdateScheduleSortsIntervals(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.UpdateSchedule(ctx, "alice", []domain.WorkingInterval{
		{Weekday: time.Tuesday, StartMinute: 9 * 60, EndMinute: 12 * 60},
		{Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
	})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if len(updated.WorkingIntervals) != 2 || updated.WorkingIntervals[0].Weekday != time.Monday {
		t.Fatalf("intervals not normalized: %+v", updated.WorkingIntervals)
	}
}

func TestDeactivate(t *testing.T) {
	st := memory.New()
	svc := NewService(st)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Deactivate(ctx, "alice"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	got, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active {
		t.Fatalf("staff still active after Deactivate")
	}

	if err := svc.Deactivate(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Deactivate unknown staff: %v", err)
	}
}
