package domain

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

const minutesPerDay = 24 * 60

// WorkingInterval is a recurring window in which a staff member accepts
// bookings, expressed as minutes since UTC midnight on a given weekday.
type WorkingInterval struct {
	Weekday     time.Weekday `json:"weekday"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

type StaffMember struct {
	bun.BaseModel `bun:"table:staff"`

	ID               string            `bun:"id,pk"`
	DisplayName      string            `bun:"display_name,notnull"`
	Active           bool              `bun:"active,notnull"`
	WorkingIntervals []WorkingInterval `bun:"working_intervals,type:jsonb"`
	CreatedAt        time.Time         `bun:"created_at,notnull"`
	UpdatedAt        time.Time         `bun:"updated_at,notnull"`
}

func (s *StaffMember) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// NormalizeWorkingIntervals bounds-checks the intervals, sorts them by
// weekday then start, and rejects overlaps within a weekday. Touching
// intervals (end == next start) are allowed.
func NormalizeWorkingIntervals(intervals []WorkingInterval) ([]WorkingInterval, error) {
	out := make([]WorkingInterval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Weekday < time.Sunday || iv.Weekday > time.Saturday {
			return nil, errors.New("weekday out of range")
		}
		if iv.StartMinute < 0 || iv.EndMinute > minutesPerDay {
			return nil, errors.New("working interval out of day bounds")
		}
		if iv.EndMinute <= iv.StartMinute {
			return nil, errors.New("working interval end must be after start")
		}
		out = append(out, iv)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].StartMinute < out[j].StartMinute
	})

	for i := 1; i < len(out); i++ {
		if out[i].Weekday == out[i-1].Weekday && out[i].StartMinute < out[i-1].EndMinute {
			return nil, errors.New("working intervals overlap")
		}
	}

	return out, nil
}

// WorksDuring reports whether [start, end) lies entirely inside the staff
// member's working intervals. An interval that spans a UTC day boundary is
// decomposed and each day's segment must fit inside a single working
// interval for that weekday.
func (s *StaffMember) WorksDuring(start, end time.Time) bool {
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		return false
	}

	for segStart := start; segStart.Before(end); {
		dayStart := time.Date(segStart.Year(), segStart.Month(), segStart.Day(), 0, 0, 0, 0, time.UTC)
		nextMidnight := dayStart.Add(24 * time.Hour)
		segEnd := end
		if nextMidnight.Before(segEnd) {
			segEnd = nextMidnight
		}

		if !s.segmentCovered(dayStart, segStart, segEnd) {
			return false
		}
		segStart = segEnd
	}
	return true
}

func (s *StaffMember) segmentCovered(dayStart, segStart, segEnd time.Time) bool {
	weekday := dayStart.Weekday()
	offStart := segStart.Sub(dayStart)
	offEnd := segEnd.Sub(dayStart)

	for _, iv := range s.WorkingIntervals {
		if iv.Weekday != weekday {
			continue
		}
		ivStart := time.Duration(iv.StartMinute) * time.Minute
		ivEnd := time.Duration(iv.EndMinute) * time.Minute
		if offStart >= ivStart && offEnd <= ivEnd {
			return true
		}
	}
	return false
}
