package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lucasjlepore/sporting/api"
	"github.com/lucasjlepore/sporting/cache"
	"github.com/lucasjlepore/sporting/calendar"
	"github.com/lucasjlepore/sporting/config"
	"github.com/lucasjlepore/sporting/events"
	"github.com/lucasjlepore/sporting/ingest"
	"github.com/lucasjlepore/sporting/observability"
	"github.com/lucasjlepore/sporting/plan"
	"github.com/lucasjlepore/sporting/store"
	"github.com/lucasjlepore/sporting/store/sqlstore"
	"github.com/lucasjlepore/sporting/threshold"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		var exhausted *store.ExhaustedError
		if errors.As(err, &exhausted) {
			log.Error("schema bootstrap exhausted", zap.Int("attempts", exhausted.Attempts), zap.Error(exhausted.Err))
		} else {
			log.Error("server stopped", zap.Error(err))
		}
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	st, err := sqlstore.Open(cfg.Dialect(), cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	defer st.Close()

	boot := &store.Bootstrapper{
		Attempts: cfg.Database.BootstrapAttempts,
		Delay:    cfg.Database.BootstrapDelay,
		OnTransition: func(tr store.Transition) {
			fields := []zap.Field{zap.Stringer("state", tr.State), zap.Int("attempt", tr.Attempt)}
			switch {
			case tr.State == store.StateSucceeded:
				observability.RecordBootstrapAttempt("succeeded")
				log.Info("schema bootstrap", fields...)
			case tr.State == store.StateExhausted:
				observability.RecordBootstrapAttempt("exhausted")
			case tr.Err != nil:
				observability.RecordBootstrapAttempt("failed")
				log.Warn("schema bootstrap retry", append(fields, zap.Error(tr.Err))...)
			}
		},
	}
	if err := boot.Run(ctx, st.Bootstrap); err != nil {
		return err
	}

	policy, _ := cfg.CollisionPolicy()
	tieBreak, _ := cfg.TieBreak()
	tracker := threshold.NewTracker(st, threshold.WithTieBreak(tieBreak), threshold.WithLogger(log))

	viewOpts := []calendar.Option{calendar.WithLookback(cfg.Calendar.LookbackDays), calendar.WithLogger(log)}
	ingestOpts := []ingest.Option{
		ingest.WithCollisionPolicy(policy),
		ingest.WithWriteTimeout(cfg.Database.WriteTimeout),
		ingest.WithLogger(log),
	}
	if cfg.Redis.Addr != "" {
		views := cache.NewRedis(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		defer views.Close()
		viewOpts = append(viewOpts, calendar.WithCache(views))
		ingestOpts = append(ingestOpts, ingest.WithInvalidator(views))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer pub.Close()
		ingestOpts = append(ingestOpts, ingest.WithPublisher(pub))
	}

	handler := api.NewServer(api.Deps{
		Ingest:         ingest.NewService(st, tracker, ingestOpts...),
		Thresholds:     tracker,
		Views:          calendar.New(st, viewOpts...),
		Plans:          plan.NewService(st, plan.WithLogger(log)),
		Points:         st,
		Health:         st.Ping,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Log:            log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("driver", string(cfg.Dialect())))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
