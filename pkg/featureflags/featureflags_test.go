package featureflags

import (
	"context"
	"errors"
	"testing"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"github.com/stretchr/testify/require"

	"sponsorportal/pkg/config"
)

type failingFlags struct{ calls int }

func (f *failingFlags) GetIdentityFlags(identifier string, traits []*flagsmith.Trait) (flagsmith.Flags, error) {
	f.calls++
	return flagsmith.Flags{}, errors.New("flagsmith unreachable")
}

func TestEnabledWithoutKeyUsesFallback(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.True(t, ff.Enabled(context.Background(), AsyncReports, "user-1", true))
	require.False(t, ff.Enabled(context.Background(), AsyncReports, "user-1", false))
}

func TestEnabledFallsBackOnError(t *testing.T) {
	client := &failingFlags{}
	ff := &featureflag{client: client}

	require.True(t, ff.Enabled(context.Background(), AsyncReports, "user-1", true))
	require.Equal(t, 1, client.calls)
}
