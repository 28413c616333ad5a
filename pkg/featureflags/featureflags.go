package featureflags

import (
	"context"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
	"sponsorportal/pkg/logger"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const (
	// AsyncReports lets POST /reports?async=true queue the report instead of
	// generating it inline.
	AsyncReports = "async_reports"
)

type FeatureFlag interface {
	Enabled(ctx context.Context, feature, identifier string, fallback bool) bool
}

type identityFlags interface {
	GetIdentityFlags(identifier string, traits []*flagsmith.Trait) (flagsmith.Flags, error)
}

type featureflag struct {
	client identityFlags
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

// ProvideFeatureFlag returns a flag source that always answers the fallback when no
// Flagsmith key is configured.
func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, feature, identifier string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}

	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		logger.FromContext(ctx).Warn("feature flags unavailable", zap.String("feature", feature), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return fallback
	}
	return enabled
}
