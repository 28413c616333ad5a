package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Otel struct {
		Endpoint string `mapstructure:"ENDPOINT"`
		Protocol string `mapstructure:"PROTOCOL"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Telemetry      bool   `mapstructure:"TELEMETRY"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
		PublicURL  string `mapstructure:"PUBLIC_URL"`
	} `mapstructure:"MINIO"`
	Stripe struct {
		SecretKey          string `mapstructure:"SECRET_KEY"`
		PublishableKey     string `mapstructure:"PUBLISHABLE_KEY"`
		WebhookSecret      string `mapstructure:"WEBHOOK_SECRET"`
		Currency           string `mapstructure:"CURRENCY"`
		DefaultDescription string `mapstructure:"DEFAULT_DESCRIPTION"`
	} `mapstructure:"STRIPE"`
	Firebase struct {
		ProjectID       string `mapstructure:"PROJECT_ID"`
		CredentialsFile string `mapstructure:"CREDENTIALS_FILE"`
	} `mapstructure:"FIREBASE"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Reports struct {
		Timezone        string `mapstructure:"TIMEZONE"`
		MonthlySchedule bool   `mapstructure:"MONTHLY_SCHEDULE"`
	} `mapstructure:"REPORTS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "sponsor-portal")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("STRIPE.CURRENCY", "usd")
	v.SetDefault("STRIPE.DEFAULT_DESCRIPTION", "Donación para misiones")
	v.SetDefault("REPORTS.TIMEZONE", "UTC")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
}

// LoadConfig reads config.yaml from the working directory (optional) overlaid with
// environment variables, applies Vault secrets when a client is provided and
// refuses to start when a required option is missing.
func LoadConfig(p Params) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Vault != nil {
		if err := applyVaultSecrets(context.Background(), p.Vault, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnv registers every nested key so AutomaticEnv can resolve STRIPE_SECRET_KEY
// into STRIPE.SECRET_KEY without a config file declaring it first.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"NODE_ID",
		"TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH",
		"PYROSCOPE.ADDR",
		"OTEL.ENDPOINT", "OTEL.PROTOCOL", "OTEL.INSECURE",
		"DATABASE.HOST", "DATABASE.DBNAME", "DATABASE.USER", "DATABASE.PASSWORD", "DATABASE.TELEMETRY",
		"REDIS.PASSWORD", "REDIS.DB",
		"MINIO.ENDPOINT", "MINIO.ACCESS_KEY", "MINIO.SECRET_KEY", "MINIO.SECURE", "MINIO.BUCKET_NAME", "MINIO.PUBLIC_URL",
		"STRIPE.SECRET_KEY", "STRIPE.PUBLISHABLE_KEY", "STRIPE.WEBHOOK_SECRET",
		"FIREBASE.PROJECT_ID", "FIREBASE.CREDENTIALS_FILE",
		"ACCESS_CONTROL.MODEL", "ACCESS_CONTROL.POLICY",
		"FLAGSMITH.ADDR", "FLAGSMITH.API_KEY",
		"REPORTS.MONTHLY_SCHEDULE",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func applyVaultSecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("vault: %w", err)
	}
	zap.L().Info("Success Get Secret")

	set := func(dst *string, key string) {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			*dst = val
		}
	}

	set(&cfg.Stripe.SecretKey, "stripe_secret_key")
	set(&cfg.Stripe.WebhookSecret, "stripe_webhook_secret")
	set(&cfg.Database.User, "postgres_user")
	set(&cfg.Database.Password, "postgres_password")
	set(&cfg.Redis.Password, "redis_password")
	set(&cfg.Minio.SecretKey, "minio_secret_key")
	set(&cfg.Flagsmith.ApiKey, "flagsmith_api_key")

	return nil
}

// Validate reports every missing required option at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", name))
		}
	}

	require(c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	require(c.Stripe.PublishableKey, "STRIPE_PUBLISHABLE_KEY")
	require(c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	require(c.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	require(c.Minio.Endpoint, "MINIO_ENDPOINT")
	require(c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	require(c.Minio.SecretKey, "MINIO_SECRET_KEY")
	require(c.Minio.BucketName, "MINIO_BUCKET_NAME")

	switch c.Database.Type {
	case "postgres", "mysql":
		require(c.Database.Host, "DATABASE_HOST")
		require(c.Database.DBNAME, "DATABASE_DBNAME")
	case "sqlite":
		require(c.Database.DBNAME, "DATABASE_DBNAME")
	default:
		result = multierror.Append(result, fmt.Errorf("DATABASE_TYPE %q is not supported", c.Database.Type))
	}

	if c.TLS.Enable && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		result = multierror.Append(result, errors.New("tls enabled but TLS_CERT_PATH or TLS_KEY_PATH not provided"))
	}

	if _, err := time.LoadLocation(c.Reports.Timezone); err != nil {
		result = multierror.Append(result, fmt.Errorf("REPORTS_TIMEZONE: %w", err))
	}

	return result.ErrorOrNil()
}

// ReportLocation is the location whose calendar months bound a report.
func (c *Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.Reports.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
