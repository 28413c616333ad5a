package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db"
	"sponsorportal/pkg/gen"
	"sponsorportal/pkg/hashistack/secretmanager"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/otelcol"
	"sponsorportal/pkg/profiling"
	"sponsorportal/pkg/redis"
	"sponsorportal/pkg/sequence"
	"sponsorportal/pkg/task"
	"sponsorportal/services/donation"
	"sponsorportal/services/feed"
	"sponsorportal/services/payment"
	"sponsorportal/services/report"
	"sponsorportal/services/sponsor"
)

// The worker runs queued report generation and the monthly scheduler. It shares the
// database with the portal and expects the portal to have migrated it.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		task.Server,
		payment.Module,
		fx.Provide(
			donation.NewService,
			sponsor.NewService,
			feed.NewService,
		),
		report.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
