package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-channelsync/internal/channel"
	"github.com/angelmondragon/packfinderz-channelsync/internal/commission"
	"github.com/angelmondragon/packfinderz-channelsync/internal/cron"
	"github.com/angelmondragon/packfinderz-channelsync/internal/importer"
	"github.com/angelmondragon/packfinderz-channelsync/internal/inventory"
	"github.com/angelmondragon/packfinderz-channelsync/internal/ledger"
	"github.com/angelmondragon/packfinderz-channelsync/internal/orders"
	"github.com/angelmondragon/packfinderz-channelsync/internal/products"
	"github.com/angelmondragon/packfinderz-channelsync/internal/returns"
	"github.com/angelmondragon/packfinderz-channelsync/internal/syncruns"
	"github.com/angelmondragon/packfinderz-channelsync/internal/tracking"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/config"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/db"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/logger"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/metrics"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/migrate"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/outbox"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/redis"
)

const allJobs = "all"

func main() {
	logg := logger.New(logger.Options{ServiceName: "channel-sync"})

	jobName := flag.String("job", allJobs, "job to run: order-import|tracking-sync|returns-sync|inventory-sync|all")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	locks := cron.LockFactory(cron.NoopLocks)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		locks = cron.RedisLocks(redisClient, func(job string) string {
			return redisClient.JobLockKey(cfg.App.Env, job)
		}, cfg.Redis.LockTTL)
	} else {
		logg.Warn(ctx, "redis not configured; overlapping runs rely on database constraints only")
	}

	registry := prometheus.NewRegistry()
	runner, err := buildRunner(cfg, logg, dbClient, locks, registry)
	requireResource(ctx, logg, "job runner", err)

	logg.Info(logg.WithField(ctx, "job", *jobName), "starting channel sync")
	runErr := run(ctx, runner, *jobName)

	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobLabel, registry); err != nil {
		logg.Error(ctx, "failed to push metrics", err)
	}

	if runErr != nil {
		logg.Error(ctx, "channel sync finished with errors", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "channel sync finished")
}

func run(ctx context.Context, runner *cron.Service, job string) error {
	if job == allJobs {
		return runner.RunAll(ctx)
	}
	_, err := runner.RunOnce(ctx, job)
	return err
}

func buildRunner(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, locks cron.LockFactory, reg *prometheus.Registry) (*cron.Service, error) {
	conn := dbClient.DB()

	gateway, err := channel.NewClient(cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("channel client: %w", err)
	}
	calc, err := commission.NewCalculator(cfg.Payout.CommissionRate())
	if err != nil {
		return nil, err
	}

	recorder, err := syncruns.NewRecorder(syncruns.RecorderParams{
		Repo:   syncruns.NewRepository(conn),
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	window := syncruns.WindowPolicy{
		DefaultLookback: cfg.Sync.DefaultLookback,
		MaxLookback:     cfg.Sync.MaxLookback,
		Overlap:         cfg.Sync.WindowOverlap,
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	orderRepo := orders.NewRepository(conn)
	productRepo := products.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:       ledger.NewRepository(conn),
		Outbox:     emitter,
		HoldPeriod: cfg.Payout.HoldPeriod(),
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	importJob, err := importer.NewService(importer.ServiceParams{
		Logger:          logg,
		DB:              dbClient,
		Gateway:         gateway,
		Orders:          orderRepo,
		Products:        productRepo,
		Outbox:          emitter,
		Windows:         recorder,
		WindowPolicy:    window,
		Calculator:      &calc,
		SKUPrefix:       cfg.Channel.SKUPrefix,
		ServiceName:     cfg.Service.Kind,
		SkipAcknowledge: cfg.FeatureFlags.SkipAcknowledge,
	})
	if err != nil {
		return nil, err
	}

	trackingJob, err := tracking.NewService(tracking.ServiceParams{
		Logger:      logg,
		DB:          dbClient,
		Gateway:     gateway,
		Orders:      orderRepo,
		Products:    productRepo,
		Ledger:      ledgerSvc,
		Calculator:  &calc,
		Outbox:      emitter,
		BatchLimit:  cfg.Sync.TrackingBatchLimit,
		ServiceName: cfg.Service.Kind,
	})
	if err != nil {
		return nil, err
	}

	returnsJob, err := returns.NewService(returns.ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Gateway:      gateway,
		Returns:      returns.NewRepository(conn),
		Orders:       orderRepo,
		Ledger:       ledgerSvc,
		Outbox:       emitter,
		Windows:      recorder,
		WindowPolicy: window,
		SKUPrefix:    cfg.Channel.SKUPrefix,
		ServiceName:  cfg.Service.Kind,
	})
	if err != nil {
		return nil, err
	}

	inventoryJob, err := inventory.NewService(inventory.ServiceParams{
		Logger:    logg,
		Gateway:   gateway,
		Inventory: inventory.NewRepository(conn),
		Products:  productRepo,
		BatchSize: cfg.Sync.InventoryBatchSize,
		SKUPrefix: cfg.Channel.SKUPrefix,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(importJob, trackingJob, returnsJob, inventoryJob),
		Locks:    locks,
		RunLog:   recorder,
		Metrics:  metrics.NewSyncJobMetrics(reg),
	})
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
