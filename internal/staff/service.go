package staff

import (
	"context"
	"strings"

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

// Service handles staff onboarding and schedule maintenance. Staff members
// are never deleted while bookings reference them; Deactivate soft-disables
// them instead.
type Service struct {
	dir store.StaffDirectory
}

func NewService(dir store.StaffDirectory) *Service {
	return &Service{dir: dir}
}

type CreateInput struct {
	ID               string
	DisplayName      string
	WorkingIntervals []domain.WorkingInterval
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.StaffMember, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return domain.StaffMember{}, validationError("display_name is required")
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > 128 {
		return domain.StaffMember{}, validationError("id too long")
	}

	intervals, err := domain.NormalizeWorkingIntervals(in.WorkingIntervals)
	if err != nil {
		return domain.StaffMember{}, validationError(err.Error())
	}

	return s.dir.CreateStaff(ctx, domain.StaffMember{
		ID:               id,
		DisplayName:      name,
		Active:           true,
		WorkingIntervals: intervals,
	})
}

func (s *Service) UpdateSchedule(ctx context.Context, staffID string, intervals []domain.WorkingInterval) (domain.StaffMember, error) {
	if strings.TrimSpace(staffID) == "" {
		return domain.StaffMember{}, validationError("staff_id is required")
	}
	normalized, err := domain.NormalizeWorkingIntervals(intervals)
	if err != nil {
		return domain.StaffMember{}, validationError(err.Error())
	}
	return s.dir.UpdateSchedule(ctx, staffID, normalized)
}

func (s *Service) Deactivate(ctx context.Context, staffID string) error {
	if strings.TrimSpace(staffID) == "" {
		return validationError("staff_id is required")
	}
	return s.dir.DeactivateStaff(ctx, staffID)
}

func (s *Service) Get(ctx context.Context, staffID string) (domain.StaffMember, error) {
	if strings.TrimSpace(staffID) == "" {
		return domain.StaffMember{}, validationError("staff_id is required")
	}
	return s.dir.GetStaff(ctx, staffID)
}
