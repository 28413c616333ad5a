package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sponsorportal/pkg/access"
	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/config"
	"sponsorportal/pkg/db"
	"sponsorportal/pkg/featureflags"
	"sponsorportal/pkg/gen"
	"sponsorportal/pkg/hashistack/secretmanager"
	"sponsorportal/pkg/health"
	"sponsorportal/pkg/httpapi"
	"sponsorportal/pkg/logger"
	"sponsorportal/pkg/minio"
	"sponsorportal/pkg/otelcol"
	"sponsorportal/pkg/profiling"
	"sponsorportal/pkg/redis"
	"sponsorportal/pkg/sequence"
	"sponsorportal/pkg/server"
	"sponsorportal/pkg/task"
	"sponsorportal/services/donation"
	"sponsorportal/services/feed"
	"sponsorportal/services/media"
	"sponsorportal/services/payment"
	"sponsorportal/services/report"
	"sponsorportal/services/sponsor"
	"sponsorportal/services/webhook"
)

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
		minio.Client,
		task.Client,
		auth.Module,
		access.Module,
		featureflags.Module,
		health.Module,
		httpapi.Module,
		payment.Module,
		media.Module,
		donation.Module,
		sponsor.Module,
		webhook.Module,
		feed.Module,
		report.Module,
		server.ProvideHTTPServer,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn,
		&donation.Donation{},
		&sponsor.Stats{},
		&webhook.ProcessedEvent{},
		&feed.Post{},
		&report.Report{},
	)
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
