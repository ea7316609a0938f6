// @title        Village Bank API
// @version      1.0
// @description  Savings groups with member-voted loans and payouts.
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey CronSecret
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/fkhayef/villagebank/docs"
	"github.com/fkhayef/villagebank/internal/auth"
	"github.com/fkhayef/villagebank/internal/config"
	"github.com/fkhayef/villagebank/internal/contribution"
	"github.com/fkhayef/villagebank/internal/database"
	"github.com/fkhayef/villagebank/internal/fundrequest"
	"github.com/fkhayef/villagebank/internal/group"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/loan"
	"github.com/fkhayef/villagebank/internal/logging"
	"github.com/fkhayef/villagebank/internal/metrics"
	"github.com/fkhayef/villagebank/internal/notification"
	"github.com/fkhayef/villagebank/internal/payment"
	"github.com/fkhayef/villagebank/internal/payout"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/store/postgres"
	mw "github.com/fkhayef/villagebank/pkg/middleware"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	books := ledger.New(logger, recorderOrNil[ledger.Recorder](m))

	groupService := group.NewService(st, logger)
	contributionService := contribution.NewService(st, books, logger)
	fundRequestService := fundrequest.NewService(st, books, cfg.Lending.InterestRate, logger, recorderOrNil[fundrequest.TransitionRecorder](m))
	loanService := loan.NewService(st, books, logger, recorderOrNil[loan.OverdueRecorder](m))
	payoutService := payout.NewService(st, books, cfg.Payout.Concurrency, logger, recorderOrNil[payout.ScheduleRecorder](m))
	paymentService := payment.NewService(st, contributionService, loanService, logger)

	// Notification outbox
	var sink notification.Sink = notification.LogSink{Logger: logger}
	if cfg.Notify.WebhookURL != "" {
		sink = notification.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}
	dispatcher := notification.NewDispatcher(st, sink, notification.Config{
		PollInterval: cfg.Notify.PollInterval,
		BatchSize:    cfg.Notify.BatchSize,
		MaxAttempts:  cfg.Notify.MaxAttempts,
	}, logger, recorderOrNil[notification.DeliveryRecorder](m))

	userAuth := mw.TestUserMiddleware
	if !cfg.Auth.DevHeader {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, time.Hour)
		userAuth = mw.AuthMiddleware(func(token string) (string, error) {
			claims, err := jwtManager.Validate(token)
			if err != nil {
				return "", err
			}
			return claims.UserID(), nil
		})
	} else {
		logger.Warn("trusting X-Test-User-ID header, do not use in production")
	}

	router := newRouter(routerDeps{
		logger: logger,
		store:  st,
		handlers: handlers{
			group:        group.NewHandler(groupService),
			contribution: contribution.NewHandler(contributionService),
			fundRequest:  fundrequest.NewHandler(fundRequestService),
			loan:         loan.NewHandler(loanService),
			payout:       payout.NewHandler(payoutService),
			payment:      payment.NewHandler(paymentService, []byte(cfg.Auth.WebhookSecret)),
		},
		userAuth:   userAuth,
		cronSecret: cfg.Auth.CronSecret,
		metrics:    m,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port, "store", cfg.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-dispatchDone
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	stop()
	<-dispatchDone
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	db, err := database.NewPostgresConnection(ctx, cfg.URL, database.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	logger.Info("connected to database")
	return postgres.New(db), nil
}

// recorderOrNil keeps a nil *metrics.Metrics from becoming a non-nil
// interface value.
func recorderOrNil[T any](m *metrics.Metrics) T {
	var zero T
	if m == nil {
		return zero
	}
	if r, ok := any(m).(T); ok {
		return r
	}
	return zero
}
