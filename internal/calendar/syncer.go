package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ssaillesh/Booking-agent/internal/domain"
)

// StatusStore is the slice of the availability store the syncer needs to
// record sync outcomes.
type StatusStore interface {
	MarkSynced(ctx context.Context, id uuid.UUID, providerEventID string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error
	ListBookingsByStatus(ctx context.Context, status domain.BookingStatus, limit int) ([]domain.Booking, error)
}

type SyncerOptions struct {
	QueueSize   int
	Workers     int
	MaxRetries  uint64
	PushTimeout time.Duration

	// ResyncSchedule is a cron expression for the sweep that re-enqueues
	// sync_failed bookings. Empty disables the sweep.
	ResyncSchedule string
}

// Syncer drains committed bookings off a bounded queue and pushes them to
// the provider with exponential backoff. Exhausted or permanently rejected
// pushes mark the booking sync_failed; the booking itself stays committed.
type Syncer struct {
	pusher  Pusher
	store   StatusStore
	log     *slog.Logger
	queue   chan domain.Booking
	workers int

	maxRetries   uint64
	pushTimeout  time.Duration
	retryInitial time.Duration

	resyncSchedule string
	cron           *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSyncer(pusher Pusher, store StatusStore, log *slog.Logger, opts SyncerOptions) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 4
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 30 * time.Second
	}
	return &Syncer{
		pusher:         pusher,
		store:          store,
		log:            log.With(slog.String("component", "calendar.syncer")),
		queue:          make(chan domain.Booking, opts.QueueSize),
		workers:        opts.Workers,
		maxRetries:     opts.MaxRetries,
		pushTimeout:    opts.PushTimeout,
		retryInitial:   500 * time.Millisecond,
		resyncSchedule: opts.ResyncSchedule,
	}
}

// Enqueue hands a booking to the sync workers without blocking. It reports
// false when the queue is full; the caller must record the drop (mark the
// booking sync_failed) for the re-sync sweep to recover it.
func (s *Syncer) Enqueue(booking domain.Booking) bool {
	select {
	case s.queue <- booking:
		return true
	default:
		return false
	}
}

func (s *Syncer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx)
		}()
	}

	if s.resyncSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.resyncSchedule, func() { s.resweep(ctx) }); err != nil {
			cancel()
			return err
		}
		s.cron.Start()
	}
	return nil
}

// Stop halts the sweep and workers, then marks any booking still sitting in
// the queue sync_failed so the sweep recovers it on next start.
func (s *Syncer) Stop() {
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	for {
		select {
		case b := <-s.queue:
			if err := s.store.UpdateStatus(context.Background(), b.ID, domain.BookingStatusSyncFailed); err != nil {
				s.log.Error("mark undrained booking sync_failed failed",
					slog.Any("err", err),
					slog.String("booking_id", b.ID.String()),
				)
			}
		default:
			return
		}
	}
}

func (s *Syncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case booking := <-s.queue:
			s.sync(ctx, booking)
		}
	}
}

func (s *Syncer) sync(ctx context.Context, booking domain.Booking) {
	log := s.log.With(
		slog.String("booking_id", booking.ID.String()),
		slog.String("staff_id", booking.StaffID),
	)

	pushCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()

	var result SyncResult
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryInitial
	bo.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		res, err := s.pusher.Push(pushCtx, booking)
		if err != nil {
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), pushCtx))

	if err != nil {
		log.Warn("calendar sync failed; booking stays committed", slog.Any("err", err))
		if uErr := s.store.UpdateStatus(ctx, booking.ID, domain.BookingStatusSyncFailed); uErr != nil {
			log.Error("mark sync_failed failed", slog.Any("err", uErr))
		}
		return
	}

	if err := s.store.MarkSynced(ctx, booking.ID, result.ProviderEventID); err != nil {
		log.Error("record provider event failed", slog.Any("err", err))
		return
	}
	log.Info("booking synced", slog.String("provider_event_id", result.ProviderEventID))
}

// resweep re-enqueues bookings whose earlier sync attempts failed.
func (s *Syncer) resweep(ctx context.Context) {
	failed, err := s.store.ListBookingsByStatus(ctx, domain.BookingStatusSyncFailed, cap(s.queue))
	if err != nil {
		s.log.Error("re-sync sweep list failed", slog.Any("err", err))
		return
	}
	requeued := 0
	for _, b := range failed {
		if s.Enqueue(b) {
			requeued++
		}
	}
	if len(failed) > 0 {
		s.log.Info("re-sync sweep",
			slog.Int("sync_failed", len(failed)),
			slog.Int("requeued", requeued),
		)
	}
}
