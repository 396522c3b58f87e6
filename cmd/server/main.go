// Command server runs the risk decision and trust escalation engine.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"aegis/internal/decision"
	"aegis/internal/escalation"
	"aegis/internal/grant"
	"aegis/internal/ledger"
	"aegis/internal/liveness"
	"aegis/internal/notify"
	"aegis/internal/platform/config"
	"aegis/internal/platform/httpserver"
	"aegis/internal/platform/logger"
	"aegis/internal/platform/metrics"
	"aegis/internal/platform/middleware"
	platformredis "aegis/internal/platform/redis"
	"aegis/internal/signal"
	"aegis/internal/transport/http/shared"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		grantStore  grant.Store
		ledgerStore ledger.Store
		escStore    escalation.Store
	)
	switch {
	case db != nil:
		grantStore = grant.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		escStore = escalation.NewPostgresStore(db)
	default:
		log.Warn("no DATABASE_URL set, using in-memory stores")
		grantStore = grant.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		escStore = escalation.NewMemoryStore()
	}
	if redisClient != nil {
		escStore = escalation.NewRedisStore(redisClient.Client)
	}

	audit := ledger.NewService(ledgerStore, ledger.NewSigner([]byte(cfg.LedgerSigningKey)), log, m)
	grants := grant.NewService(grantStore, audit, log)

	var notifier notify.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka notifier: %w", err)
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	} else {
		notifier = notify.NewLogNotifier(log)
	}
	dispatcher := notify.NewDispatcher(notifier, log, m)

	escalations := escalation.NewService(
		escStore, liveness.NewStaticVerifier(), audit, dispatcher, log, m,
		escalation.WithCodeValidity(cfg.CodeValidity),
	)
	sweeper := escalation.NewSweeper(escalations, cfg.SweepInterval, log)

	callScorer, err := signal.NewCallScorer(signal.DefaultIndicatorRules)
	if err != nil {
		return fmt.Errorf("compile indicator rules: %w", err)
	}
	txnScorer := signal.NewTransactionScorer(signal.DefaultTransactionThresholds())
	facade := decision.NewService(grants, callScorer, txnScorer, escalations, audit, dispatcher, log, m)

	router := buildRouter(cfg, log, db, redisClient,
		decision.NewHandler(facade, log),
		grant.NewHandler(grants, log),
		ledger.NewHandler(audit, log),
		escalation.NewHandler(escalations, log),
	)
	server := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := dispatcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildRouter(cfg config.Config, log *slog.Logger, db *sql.DB, redisClient *platformredis.Client,
	decisions *decision.Handler, grants *grant.Handler, audit *ledger.Handler, breakGlass *escalation.Handler) http.Handler {

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", healthz(db, redisClient))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	decisions.RegisterRoutes(r)
	grants.RegisterRoutes(r)
	audit.RegisterRoutes(r)

	validator := middleware.NewHMACValidator(cfg.JWTSigningKey)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdvocate(validator, log))
		breakGlass.RegisterRoutes(r)
	})

	return r
}

func healthz(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps := map[string]string{}
		healthy := true
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				deps["postgres"] = err.Error()
				healthy = false
			} else {
				deps["postgres"] = "ok"
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				deps["redis"] = err.Error()
				healthy = false
			} else {
				deps["redis"] = "ok"
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		shared.WriteJSON(w, status, map[string]any{"status": state, "dependencies": deps})
	}
}
