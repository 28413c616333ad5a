package profiling

import (
	"context"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("profiling", fx.Invoke(StartProfiling))

// StartProfiling pushes continuous profiles to pyroscope when PYROSCOPE_ADDR is set.
func StartProfiling(lc fx.Lifecycle, c *config.Config) error {
	if c.Pyroscope.Addr == "" {
		zap.L().Info("pyroscope disabled")
		return nil
	}

	zap.L().Info("starting pyroscope", zap.String("app_name", c.AppName), zap.String("pyroscope_addr", c.Pyroscope.Addr))
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
			"version":      c.AppVersion,
		},
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("stopping pyroscope")
			return profiler.Stop()
		},
	})

	return nil
}
