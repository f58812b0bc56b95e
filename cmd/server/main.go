package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	appservice "terrier/internal/application/service"
	appstore "terrier/internal/application/store"
	"terrier/internal/approval"
	approvalstore "terrier/internal/approval/store"
	"terrier/internal/audit"
	auditstore "terrier/internal/audit/store"
	"terrier/internal/certification"
	"terrier/internal/dispute"
	disputestore "terrier/internal/dispute/store"
	"terrier/internal/ledger"
	"terrier/internal/platform/config"
	"terrier/internal/platform/database"
	"terrier/internal/platform/httpserver"
	"terrier/internal/platform/logger"
	"terrier/internal/platform/metrics"
	"terrier/internal/platform/middleware"
	"terrier/internal/platform/redis"
	"terrier/internal/property"
	propstore "terrier/internal/property/store"
	httptransport "terrier/internal/transport/http"
)

// main wires the dependency graph and owns the process lifecycle. Business
// rules live in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	var (
		applications appstore.Store
		properties   propstore.Store
		disputes     disputestore.DisputeStore
		cases        disputestore.CaseStore
		settings     approval.SettingsStore
		auditLog     audit.Store
		db           *sql.DB
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		applications = appstore.NewPostgres(db)
		properties = propstore.NewPostgres(db)
		disputes = disputestore.NewPostgresDisputes(db)
		cases = disputestore.NewPostgresCases(db)
		settings = approvalstore.NewPostgres(db)
		auditLog = auditstore.NewPostgres(db)
		log.Info("storage: postgres")
	} else {
		applications = appstore.NewInMemory()
		properties = propstore.NewInMemory()
		disputes = disputestore.NewInMemoryDisputes()
		cases = disputestore.NewInMemoryCases()
		settings = approvalstore.NewInMemory()
		auditLog = auditstore.NewInMemory()
		log.Warn("storage: in-memory, all state is lost on restart")
	}

	rdb, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	var reservations ledger.ReservationStore = ledger.NewMemoryReservations()
	if rdb != nil {
		defer rdb.Close()
		reservations = ledger.NewRedisReservations(rdb.Client, 24*time.Hour)
		log.Info("reservations: redis")
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithAsyncBuffer(256)}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit sink: kafka", "topic", cfg.AuditTopic)
	}
	publisher := audit.NewPublisher(auditLog, auditOpts...)
	defer publisher.Close()

	var client ledger.Client
	if cfg.Ledger.URL != "" {
		client = ledger.NewHTTPClient(cfg.Ledger.URL)
		log.Info("ledger: remote", "url", cfg.Ledger.URL)
	} else {
		client = ledger.NewFake()
		log.Warn("ledger: in-process simulator")
	}
	gateway := ledger.NewGateway(client, reservations, log,
		ledger.WithMetrics(m),
		ledger.WithConfirmWindow(cfg.Ledger.ConfirmDeadline, cfg.Ledger.ConfirmInterval))

	certifier := certification.NewService(applications, properties, gateway, publisher, log, m)
	propertySvc := property.NewService(properties, gateway, publisher, log, m)
	applicationSvc := appservice.NewService(applications, settings, approval.NewCoordinator(), certifier, publisher, log, m)
	approvalSvc := approval.NewService(settings, log, publisher)
	disputeSvc := dispute.NewService(disputes, cases, properties, publisher, log, m)

	validator := middleware.NewJWTValidator([]byte(cfg.JWTSigningKey))
	router := httptransport.NewRouter(
		httptransport.RouterConfig{
			Logger: log,
			Health: healthCheck(db, rdb),
		},
		httptransport.NewApplicationHandler(applicationSvc, log, validator),
		httptransport.NewPropertyHandler(propertySvc, log, validator),
		httptransport.NewDisputeHandler(disputeSvc, log, validator),
		httptransport.NewAdminHandler(approvalSvc, log, validator),
		httptransport.NewVerifyHandler(certifier, publisher, log, validator),
	)

	srv := httpserver.New(cfg.Addr, router)
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func healthCheck(db *sql.DB, rdb *redis.Client) func() map[string]string {
	return func() map[string]string {
		out := map[string]string{}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db != nil {
			out["postgres"] = "ok"
			if err := db.PingContext(ctx); err != nil {
				out["postgres"] = "unreachable"
			}
		}
		if rdb != nil {
			out["redis"] = "ok"
			if err := rdb.Health(ctx); err != nil {
				out["redis"] = "unreachable"
			}
		}
		return out
	}
}
