package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

// Credentials carries the provider OAuth client for a single tenant. It is
// constructed once at service start and injected; nothing here is shared
// module-level state.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

type GoogleConfig struct {
	Credentials Credentials

	// CalendarID defaults to "primary".
	CalendarID string

	// SMSGatewayDomain maps a customer phone number to a calendar attendee
	// address (<phone>@<domain>). Empty disables attendee mapping.
	SMSGatewayDomain string
}

// GoogleCalendar mirrors bookings to Google Calendar. The provider event ID
// is derived from the booking UUID, so re-pushing an already synced booking
// hits the provider's duplicate check and is treated as success.
type GoogleCalendar struct {
	events     *gcal.EventsService
	calendarID string
	smsDomain  string
}

func NewGoogleCalendar(ctx context.Context, cfg GoogleConfig) (*GoogleCalendar, error) {
	if !cfg.Credentials.Configured() {
		return nil, fmt.Errorf("google calendar credentials are not configured")
	}

	oc := &oauth2.Config{
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.Credentials.RefreshToken})

	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendar{
		events:     svc.Events,
		calendarID: calendarID,
		smsDomain:  cfg.SMSGatewayDomain,
	}, nil
}

func (g *GoogleCalendar) Push(ctx context.Context, booking domain.Booking) (SyncResult, error) {
	event := &gcal.Event{
		Id:          ProviderEventID(booking.ID),
		Summary:     fmt.Sprintf("%s for %s", booking.Service, booking.CustomerName),
		Description: fmt.Sprintf("Staff: %s, Phone: %s", booking.StaffID, booking.CustomerPhone),
		Start: &gcal.EventDateTime{
			DateTime: booking.StartTime.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &gcal.EventDateTime{
			DateTime: booking.EndTime.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}
	if g.smsDomain != "" && booking.CustomerPhone != "" {
		event.Attendees = []*gcal.EventAttendee{
			{Email: booking.CustomerPhone + "@" + g.smsDomain},
		}
	}

	created, err := g.events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		if isDuplicateEvent(err) {
			// Event already exists under this ID: an earlier push succeeded.
			return SyncResult{ProviderEventID: event.Id}, nil
		}
		return SyncResult{}, classify(err)
	}
	return SyncResult{ProviderEventID: created.Id}, nil
}

// isDuplicateEvent reports whether the provider rejected the insert because
// an event with this ID already exists.
func isDuplicateEvent(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusConflict
}

func classify(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return &SyncError{Err: err}
	}
	switch gErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return &SyncError{Permanent: true, Err: err}
	default:
		return &SyncError{Err: err}
	}
}

// ProviderEventID derives a provider-side event identifier from the booking
// UUID. Google event IDs must use base32hex characters; UUID hex digits are a
// subset of that alphabet.
func ProviderEventID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
