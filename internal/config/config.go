package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	Development = "development"
	Production  = "production"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Gateway     GatewayConfig   `mapstructure:"gateway"`
	Identity    IdentityConfig  `mapstructure:"identity"`
	Webhook     WebhookConfig   `mapstructure:"webhook"`
	Reconcile   ReconcileConfig `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN builds the mysql connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type GatewayConfig struct {
	BaseUrl      string        `mapstructure:"base_url"`
	ApiKey       string        `mapstructure:"api_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	ContractCode string        `mapstructure:"contract_code"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type IdentityConfig struct {
	BaseUrl string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	// Secret is the shared HMAC secret for inbound notification signatures.
	Secret string `mapstructure:"secret"`
	// StrictSignature rejects bad signatures with 401. Outside production a
	// failed check is logged and tolerated.
	StrictSignature bool          `mapstructure:"strict_signature"`
	DedupCacheSize  int           `mapstructure:"dedup_cache_size"`
	Retention       time.Duration `mapstructure:"retention"`
}

type ReconcileConfig struct {
	// Cron spec for the reconciliation job.
	Schedule string `mapstructure:"schedule"`
	// Lookback is the trailing window pulled from the gateway.
	Lookback time.Duration `mapstructure:"lookback"`
	// SettlementLookback bounds the heuristic settlement fallback match.
	SettlementLookback time.Duration `mapstructure:"settlement_lookback"`
	// DepositExpiry is how long a PENDING deposit stays payable.
	DepositExpiry time.Duration `mapstructure:"deposit_expiry"`
	// OrphanSchedule is the cron spec for the orphan resolution sweep.
	OrphanSchedule string `mapstructure:"orphan_schedule"`
}

// Load reads configuration from environment variables (optionally seeded
// from a .env file). Keys are uppercase with underscores, e.g.
// GATEWAY_BASE_URL maps to gateway.base_url.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Not fatal, system environment may carry everything.
		_ = godotenv.Load("../.env")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Bind explicitly so AutomaticEnv resolves nested keys.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", Development)
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "funding")

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("gateway.base_url", "https://api.sandbox.gateway.local")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.contract_code", "")
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.max_retries", 3)

	v.SetDefault("identity.base_url", "http://localhost:5002")
	v.SetDefault("identity.timeout", 5*time.Second)

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.strict_signature", false)
	v.SetDefault("webhook.dedup_cache_size", 2000)
	v.SetDefault("webhook.retention", 720*time.Hour)

	v.SetDefault("reconcile.schedule", "0 */4 * * *")
	v.SetDefault("reconcile.lookback", 48*time.Hour)
	v.SetDefault("reconcile.settlement_lookback", 168*time.Hour)
	v.SetDefault("reconcile.deposit_expiry", 30*time.Minute)
	v.SetDefault("reconcile.orphan_schedule", "*/30 * * * *")
}

// IsProduction reports whether strict behaviors (signature rejection) apply.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}
