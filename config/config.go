// Package config loads the service configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type PostgresConfig struct {
	// URL selects the postgres mirror store. Empty keeps the mirror in memory.
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type QueueConfig struct {
	Backend    string        `mapstructure:"backend"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type LedgerConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	WSURL               string        `mapstructure:"ws_url"`
	ContractAddress     string        `mapstructure:"contract_address"`
	PrivateKey          string        `mapstructure:"private_key"`
	ChainID             int64         `mapstructure:"chain_id"`
	Confirmations       uint64        `mapstructure:"confirmations"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
}

type SyncConfig struct {
	MaxLag            time.Duration `mapstructure:"max_lag"`
	GapTolerance      uint64        `mapstructure:"gap_tolerance"`
	MaxEventID        uint64        `mapstructure:"max_event_id"`
	MaxTokenID        uint64        `mapstructure:"max_token_id"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconnectMin      time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.admin_token", "")

	v.SetDefault("log.level", "info")

	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.addr", "")

	v.SetDefault("queue.backend", "gochannel")
	v.SetDefault("queue.max_retries", 10)
	v.SetDefault("queue.retry_delay", 100*time.Millisecond)

	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.ws_url", "")
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.confirmations", 1)
	v.SetDefault("ledger.confirmation_timeout", 2*time.Minute)

	v.SetDefault("sync.max_lag", 30*time.Second)
	v.SetDefault("sync.gap_tolerance", 0)
	v.SetDefault("sync.max_event_id", 0)
	v.SetDefault("sync.max_token_id", 0)
	v.SetDefault("sync.reconcile_interval", 0)
	v.SetDefault("sync.reconnect_min", time.Second)
	v.SetDefault("sync.reconnect_max", time.Minute)
}

// Load reads the configuration. Every key can be set from the environment as
// its upper-cased path, e.g. LEDGER_RPC_URL for ledger.rpc_url.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by the original deployment scripts.
	aliases := map[string]string{
		"ledger.rpc_url":          "RPC_URL",
		"ledger.contract_address": "CONTRACT_ADDRESS",
		"ledger.private_key":      "OWNER_PRIVATE_KEY",
		"redis.addr":              "REDIS_ADDR",
		"http.addr":               "HTTP_ADDR",
	}
	for key, env := range aliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Ledger.RPCURL == "" {
		errs = append(errs, errors.New("ledger.rpc_url is required"))
	}
	if c.Ledger.ContractAddress == "" {
		errs = append(errs, errors.New("ledger.contract_address is required"))
	}

	switch c.Queue.Backend {
	case "gochannel":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis queue"))
		}
	case "postgres":
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.backend %q", c.Queue.Backend))
	}

	return errors.Join(errs...)
}
