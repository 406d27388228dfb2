package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"parcel-tracking-service/internal/adapters/changefeed"
	"parcel-tracking-service/internal/adapters/inmem"
	"parcel-tracking-service/internal/adapters/messaging"
	"parcel-tracking-service/internal/adapters/repositories"
	"parcel-tracking-service/internal/api"
	"parcel-tracking-service/internal/config"
	"parcel-tracking-service/internal/domain"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/db"
	"parcel-tracking-service/internal/platform/logger"
	"parcel-tracking-service/internal/ports"
	"parcel-tracking-service/internal/services"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"
)

// main is the application composition root.
// It wires concrete adapters (Postgres, Redis or in-memory) behind ports and
// runs the HTTP surface, the change feed and the liveness schedule.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}

	os.Exit(serve(cfg, lg))
}

// serve runs until a signal or a fatal error and returns the process exit
// code, so deferred cleanup (signal reset, log flush) runs before os.Exit.
func serve(cfg config.Config, lg *logger.Logger) int {
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("server stopped", "error", err)
		return 1
	}
	lg.Info("server stopped")
	return 0
}

type stores struct {
	plans   ports.MasterPlanStore
	records ports.ExecutionRecordStore

	// Exactly one of these drives the change listener.
	memRecords *inmem.ExecutionRecordStore
	sqlDB      *sql.DB
}

type channels struct {
	bus      ports.EventBus
	recovery ports.RecoveryQueue
	alerts   ports.AlertPublisher
	rdb      *goredis.Client
}

func run(ctx context.Context, cfg config.Config, lg *logger.Logger) error {
	planConfig, err := loadPlans(cfg.PlansPath)
	if err != nil {
		return err
	}
	// Steps outside the phase order can never be reconciled.
	for _, m := range planConfig.Validate() {
		lg.Warn("plan step not in phase order", "class", m.ShipmentClass, "step", m.StepName)
	}

	st, err := openStores(ctx, cfg, planConfig, lg)
	if err != nil {
		return err
	}
	if st.sqlDB != nil {
		defer st.sqlDB.Close()
	}

	ch, err := openChannels(ctx, cfg, lg)
	if err != nil {
		return err
	}
	if ch.rdb != nil {
		defer ch.rdb.Close()
	}

	defaultClass := domain.ShipmentClass(cfg.DefaultShipmentClass)

	routerCfg := services.DefaultRouterConfig()
	routerCfg.Source = cfg.EventSource
	routerCfg.DefaultClass = defaultClass
	eventRouter := services.NewEventRouter(st.records, st.plans, ch.bus, routerCfg, lg)

	reconciler := services.NewReconciler(st.records, st.plans, planConfig, defaultClass, lg)
	listener := services.NewChangeListener(reconciler, lg)
	monitor := services.NewLivenessMonitor(st.records, ch.alerts, ch.recovery, cfg.LivenessPageSize, lg)

	g, gctx := errgroup.WithContext(ctx)

	if st.memRecords != nil {
		st.memRecords.OnChange = func(ctx context.Context, c domain.RecordChange) {
			// Errors are logged by the listener; the in-memory feed has no redelivery.
			_ = listener.HandleChange(ctx, c)
		}
	} else {
		feed := changefeed.NewPGListener(cfg.DatabaseURL, cfg.ChangeChannel, st.records, listener, lg)
		g.Go(func() error { return feed.Run(gctx) })
	}

	schedule := cron.New()
	if err := monitor.Schedule(gctx, schedule, cfg.LivenessSchedule); err != nil {
		return fmt.Errorf("schedule liveness sweep %q: %w", cfg.LivenessSchedule, err)
	}
	schedule.Start()
	defer schedule.Stop()
	lg.Info("liveness sweep scheduled", "spec", cfg.LivenessSchedule, "page_size", cfg.LivenessPageSize)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(eventRouter, st.records, planConfig, lg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		lg.Info("server listening", "addr", srv.Addr, "store", cfg.StoreDriver, "bus", cfg.BusDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadPlans(path string) (plans.Config, error) {
	if path == "" {
		return plans.Default(), nil
	}
	return plans.LoadFile(path)
}

func openStores(ctx context.Context, cfg config.Config, planConfig plans.Config, lg *logger.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		planStore := inmem.NewMasterPlanStore(planConfig)
		records := inmem.NewExecutionRecordStore(planStore)
		return stores{plans: planStore, records: records, memRecords: records}, nil
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}

	// Schema and seed are idempotent, so local runs work without dbtool.
	if err := repositories.InitSchema(ctx, conn, cfg.ChangeChannel); err != nil {
		_ = conn.Close()
		return stores{}, err
	}
	seeded, err := repositories.SeedMasterPlans(ctx, conn, planConfig)
	if err != nil {
		_ = conn.Close()
		return stores{}, err
	}
	lg.Info("master plans seeded", "inserted", seeded)

	return stores{
		plans:   repositories.NewSQLMasterPlanStore(conn),
		records: repositories.NewSQLExecutionRecordStore(conn, lg),
		sqlDB:   conn,
	}, nil
}

func openChannels(ctx context.Context, cfg config.Config, lg *logger.Logger) (channels, error) {
	if cfg.BusDriver == config.DriverMemory {
		lg.Warn("BUS_DRIVER=memory: events, alerts and recovery messages are kept in process only")
		return channels{
			bus:      &inmem.EventBus{},
			recovery: &inmem.RecoveryQueue{},
			alerts:   &inmem.AlertPublisher{},
		}, nil
	}

	rdb, err := messaging.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return channels{}, err
	}

	return channels{
		bus:      messaging.NewRedisEventBus(rdb, cfg.EventStream, lg),
		recovery: messaging.NewRedisRecoveryQueue(rdb, cfg.RecoveryQueue),
		alerts:   messaging.NewRedisAlertPublisher(rdb, cfg.AlertChannel),
		rdb:      rdb,
	}, nil
}
