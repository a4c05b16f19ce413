package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ssaillesh/Booking-agent/internal/calendar"
	"github.com/ssaillesh/Booking-agent/internal/config"
	"github.com/ssaillesh/Booking-agent/internal/kb"
	"github.com/ssaillesh/Booking-agent/internal/scheduling"
	"github.com/ssaillesh/Booking-agent/internal/staff"
	"github.com/ssaillesh/Booking-agent/internal/store"
	"github.com/ssaillesh/Booking-agent/internal/store/memory"
	"github.com/ssaillesh/Booking-agent/internal/store/postgres"
	httpTransport "github.com/ssaillesh/Booking-agent/internal/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "booking-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "booking-server"),
	)
	slog.SetDefault(log)

	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	log.Info("starting",
		slog.String("http_addr", addr),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	var (
		availStore store.AvailabilityStore
		staffDir   store.StaffDirectory
		kbRepo     kb.Repository
	)
	switch cfg.StoreDriver {
	case "memory":
		m := memory.New()
		availStore, staffDir = m, m
		kbRepo = kb.NewMemoryRepository()
	case "postgres":
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(context.Background(), cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("database close failed", slog.Any("err", err))
			}
		}()
		repo := postgres.NewAvailabilityRepo(db)
		availStore, staffDir = repo, repo
		kbRepo = postgres.NewKBRepo(db)
	default:
		log.Error("unknown store driver", slog.String("store_driver", cfg.StoreDriver))
		os.Exit(1)
	}

	var dispatcher scheduling.Dispatcher
	creds := calendar.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RefreshToken: cfg.GoogleRefreshToken,
	}
	if creds.Configured() {
		pusher, err := calendar.NewGoogleCalendar(context.Background(), calendar.GoogleConfig{
			Credentials:      creds,
			CalendarID:       cfg.GoogleCalendarID,
			SMSGatewayDomain: cfg.SMSGatewayDomain,
		})
		if err != nil {
			log.Error("calendar adapter init failed", slog.Any("err", err))
			os.Exit(1)
		}
		syncer := calendar.NewSyncer(pusher, availStore, log, calendar.SyncerOptions{
			QueueSize:      cfg.SyncQueueSize,
			Workers:        cfg.SyncWorkers,
			MaxRetries:     cfg.SyncMaxRetries,
			PushTimeout:    cfg.SyncPushTimeout,
			ResyncSchedule: cfg.SyncResyncSchedule,
		})
		if err := syncer.Start(); err != nil {
			log.Error("calendar syncer start failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer syncer.Stop()
		dispatcher = syncer
	} else {
		log.Warn("google calendar credentials not set; calendar sync disabled")
	}

	manager := scheduling.NewManager(availStore, dispatcher, log)
	handler := httpTransport.NewHandler(
		manager,
		staff.NewService(staffDir),
		kb.NewService(kbRepo),
		availStore,
		log,
	)

	srv := &http.Server{
		Addr:    addr,
		Handler: httpTransport.NewRouter(handler, cfg.RequestTimeout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", addr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, srv, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, srv *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing close", slog.Any("err", err))
		_ = srv.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
