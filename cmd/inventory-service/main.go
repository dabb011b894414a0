// cmd/inventory-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"bazaar/internal/inventory/application"
	"bazaar/internal/inventory/infrastructure"
	"bazaar/internal/inventory/interfaces"
	"bazaar/internal/pkg/bootstrap"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/redis"
)

const serviceName = "inventory-service"

// main is the composition root: build every dependency, then hand the
// assembled service to bootstrap.
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.StockModel{}, &infrastructure.ReservationModel{}); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to migrate inventory schema")
	}

	redisClient, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ledger := infrastructure.NewGormStockLedger(db)
	store := infrastructure.NewGormReservationStore(db)
	// The reservation store doubles as the status lookup that decides when a
	// stale lock may be stolen.
	locks, err := infrastructure.NewRedisLockManager(redisClient, store, cfg.Inventory.Lock.Retries, cfg.Inventory.Lock.RetryDelay.Std())
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize lock manager")
	}

	tracer := otel.Tracer(serviceName)
	engine := application.NewEngine(ledger, locks, store, tracer, cfg.Inventory.Lock.TTL.Std())
	handler := interfaces.NewInventoryHandler(engine)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if cfg.Inventory.Sweep.Enabled {
		sweeper := application.NewSweeper(engine, cfg.Inventory.Sweep.Interval.Std(), cfg.Inventory.Sweep.BatchSize)
		go sweeper.Run(sweepCtx)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux, cfg.Security.InternalSecret, cfg.Security.DevBypass)
		},
		OnShutdown: func(ctx context.Context) {
			stopSweep()
			if err := redisClient.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("error closing redis client")
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		},
	})
}
