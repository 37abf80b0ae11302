package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"giftvoucher/pkg/config"
	"giftvoucher/pkg/db"
	"giftvoucher/pkg/health"
	"giftvoucher/pkg/logger"
	"giftvoucher/pkg/redis"
	"giftvoucher/pkg/server"
	"giftvoucher/pkg/task"
	"giftvoucher/services/code"
	"giftvoucher/services/order"
	"giftvoucher/services/redemption"
	"giftvoucher/services/voucher"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(
			provideTracerProvider,
			provideSnowflakeNode,
		),
		server.ProvideHTTPServer,
		health.Module,
		voucher.Module,
		code.Module,
		redemption.Module,
		order.Module,
		order.TaskModule,
		fx.Invoke(autoMigrate, registerDBTelemetry),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerDBTelemetry(gdb *gorm.DB, cfg *config.Config) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	return db.Metric(gdb, cfg.Database.DBNAME)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&voucher.VoucherType{},
		&voucher.Voucher{},
		&code.Code{},
		&redemption.Redemption{},
	)
}
