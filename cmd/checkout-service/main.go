// cmd/checkout-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"bazaar/internal/checkout/application"
	"bazaar/internal/checkout/application/saga"
	"bazaar/internal/checkout/infrastructure"
	"bazaar/internal/checkout/infrastructure/adapter"
	"bazaar/internal/checkout/interfaces"
	"bazaar/internal/pkg/bootstrap"
	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/pkg/signature"
)

const serviceName = "checkout-service"

// main is the composition root: build every dependency, then hand the
// assembled service to bootstrap.
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.DeadLetterModel{}); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to migrate checkout schema")
	}

	kafkaWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.CheckoutTopic)

	tracer := otel.Tracer(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			// Internal calls resolve through Nacos and are HMAC-signed; the
			// payment provider authenticates with its own OAuth scheme.
			internalClient := httpclient.NewClient(
				tracer,
				&httpclient.NacosResolver{Nacos: appCtx.Nacos},
				signature.NewSigner(cfg.Security.InternalSecret),
			)

			inventory := adapter.NewInventoryHTTPAdapter(internalClient)
			orders := adapter.NewOrderHTTPAdapter(internalClient)
			payments := adapter.NewPaymentGatewayAdapter(
				cfg.Checkout.Payment.BaseURL,
				cfg.Checkout.Payment.ClientID,
				cfg.Checkout.Payment.ClientSecret,
			)
			notifier := adapter.NewNotificationKafkaAdapter(kafkaWriter)
			deadLetters := infrastructure.NewGormDeadLetterStore(db)

			coordinator := saga.NewCoordinator(
				inventory,
				payments,
				orders,
				notifier,
				deadLetters,
				tracer,
				cfg.Checkout.StepTimeout.Std(),
				cfg.Checkout.ReservationTTL.Std(),
			)
			service := application.NewCheckoutApplicationService(coordinator, tracer)

			handler := interfaces.NewCheckoutHandler(service)
			handler.RegisterRoutes(appCtx.Mux, cfg.Security.InternalSecret, cfg.Security.DevBypass)
		},
		OnShutdown: func(ctx context.Context) {
			if err := kafkaWriter.Close(); err != nil {
				logger.Logger.Error().Err(err).Msg("error closing kafka writer")
			}
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		},
	})
}
