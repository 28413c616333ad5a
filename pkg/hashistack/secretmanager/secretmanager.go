package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// ProvideVault returns a client configured from VAULT_ADDR / VAULT_TOKEN, or nil when
// VAULT_ADDR is unset so config loading skips the secret overlay.
func ProvideVault() (*vault.Client, error) {
	if os.Getenv("VAULT_ADDR") == "" {
		zap.L().Info("vault disabled, VAULT_ADDR not set")
		return nil, nil
	}

	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		if err := client.SetToken(token); err != nil {
			return nil, err
		}
	}

	return client, nil
}
