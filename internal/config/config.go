// Package config carga la configuración del servicio desde variables de
// entorno (y un .env opcional, que carga main con godotenv).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	AuthModeDev  = "dev"
	AuthModeJWT  = "jwt"
	AuthModeOdin = "odin"

	SignerEd25519    = "ed25519"
	SignerLegacyHMAC = "legacy-hmac"
	SignerRemote     = "remote"
)

type Config struct {
	Port      string `mapstructure:"PORT"`
	DBDSN     string `mapstructure:"DB_DSN"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	AppName   string `mapstructure:"APP_NAME"`

	AuthMode   string `mapstructure:"AUTH_MODE"`
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	JWTIssuer  string `mapstructure:"JWT_ISSUER"`
	OdinURL    string `mapstructure:"ODIN_URL"`
	OdinAPIKey string `mapstructure:"ODIN_API_KEY"`

	Signer       string `mapstructure:"SIGNER"`
	SignerURL    string `mapstructure:"SIGNER_URL"`
	SignerAPIKey string `mapstructure:"SIGNER_API_KEY"`

	CredentialRegistryURL    string        `mapstructure:"CREDENTIAL_REGISTRY_URL"`
	CredentialRegistryAPIKey string        `mapstructure:"CREDENTIAL_REGISTRY_API_KEY"`
	CredentialCacheTTL       time.Duration `mapstructure:"CREDENTIAL_CACHE_TTL"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	ExpirySweepSchedule string        `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	TransferTTL         time.Duration `mapstructure:"TRANSFER_TTL"`
	HTTPClientTimeout   time.Duration `mapstructure:"HTTP_CLIENT_TIMEOUT"`
	ShutdownTimeout     time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

var keys = []string{
	"PORT", "DB_DSN", "LOG_LEVEL", "LOG_FORMAT", "APP_NAME",
	"AUTH_MODE", "JWT_SECRET", "JWT_ISSUER", "ODIN_URL", "ODIN_API_KEY",
	"SIGNER", "SIGNER_URL", "SIGNER_API_KEY",
	"CREDENTIAL_REGISTRY_URL", "CREDENTIAL_REGISTRY_API_KEY", "CREDENTIAL_CACHE_TTL",
	"RABBITMQ_URL", "EVENTS_EXCHANGE",
	"EXPIRY_SWEEP_SCHEDULE", "TRANSFER_TTL", "HTTP_CLIENT_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"CORS_ALLOWED_ORIGINS",
}

func LoadConfig() (Config, error) {
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("APP_NAME", "custody-ledger")
	viper.SetDefault("AUTH_MODE", AuthModeDev)
	viper.SetDefault("SIGNER", SignerEd25519)
	viper.SetDefault("CREDENTIAL_CACHE_TTL", "5m")
	viper.SetDefault("EVENTS_EXCHANGE", "custody_events")
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "@every 5m")
	viper.SetDefault("TRANSFER_TTL", "24h")
	viper.SetDefault("HTTP_CLIENT_TIMEOUT", "5s")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// BindEnv explícito para que Unmarshal vea claves sin default
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.Signer = strings.ToLower(strings.TrimSpace(cfg.Signer))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.AuthMode {
	case AuthModeDev:
	case AuthModeJWT:
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("config: JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthModeOdin:
		if strings.TrimSpace(c.OdinURL) == "" || strings.TrimSpace(c.OdinAPIKey) == "" {
			return fmt.Errorf("config: ODIN_URL and ODIN_API_KEY are required when AUTH_MODE=odin")
		}
	default:
		return fmt.Errorf("config: AUTH_MODE %q must be one of dev, jwt, odin", c.AuthMode)
	}

	switch c.Signer {
	case SignerEd25519, SignerLegacyHMAC:
	case SignerRemote:
		if strings.TrimSpace(c.SignerURL) == "" {
			return fmt.Errorf("config: SIGNER_URL is required when SIGNER=remote")
		}
	default:
		return fmt.Errorf("config: SIGNER %q must be one of ed25519, legacy-hmac, remote", c.Signer)
	}

	if c.TransferTTL <= 0 {
		return fmt.Errorf("config: TRANSFER_TTL must be positive, got %s", c.TransferTTL)
	}
	if strings.TrimSpace(c.ExpirySweepSchedule) != "" {
		if _, err := cron.ParseStandard(c.ExpirySweepSchedule); err != nil {
			return fmt.Errorf("config: EXPIRY_SWEEP_SCHEDULE: %w", err)
		}
	}
	return nil
}

// Addr devuelve ":PORT".
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
}

// AllowedOrigins parsea CORS_ALLOWED_ORIGINS (CSV).
func (c Config) AllowedOrigins() []string {
	out := make([]string, 0)
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
