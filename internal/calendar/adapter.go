// Package calendar mirrors committed bookings to an external calendar
// provider. The availability store remains the source of truth; the external
// calendar is best-effort mirrored state, so a failed push never rolls a
// booking back.
package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

type SyncResult struct {
	ProviderEventID string
}

// Pusher pushes a committed booking to the provider. Push must be idempotent
// per booking ID: re-sending a previously synced booking is a no-op.
type Pusher interface {
	Push(ctx context.Context, booking domain.Booking) (SyncResult, error)
}

// SyncError wraps a provider failure. Permanent errors (bad credentials,
// rejected payload) are not retried; everything else is considered transient.
type SyncError struct {
	Permanent bool
	Err       error
}

func (e *SyncError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("calendar sync (%s): %v", kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a provider rejection that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var sErr *SyncError
	return errors.As(err, &sErr) && sErr.Permanent
}
