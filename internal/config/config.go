/**
 * @description
 * This package handles configuration management for the ledger kernel. It
 * uses Viper to read configuration from environment variables (and an
 * optional .env file), providing a centralized way to manage the settlement
 * window, idempotency, posting-retry, and netting settings plus the store,
 * cache, and broker connection strings.
 *
 * @dependencies
 * - github.com/spf13/viper: application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// SettlementWindow is one of the recognised window shapes from spec §6.
type SettlementWindow string

const (
	WindowRealTime   SettlementWindow = "real_time"
	WindowMicroBatch SettlementWindow = "micro_batch"
	WindowHourly     SettlementWindow = "hourly"
	WindowDaily      SettlementWindow = "daily"
)

// NettingMode selects which netting passes the batch service runs.
type NettingMode string

const (
	NettingBilateral    NettingMode = "bilateral"
	NettingMultilateral NettingMode = "multilateral"
	NettingBoth         NettingMode = "both"
)

// Config holds every setting the ledger kernel recognises. Loading it is an
// externally-operated concern (per spec §1); LoadConfig exists so
// cmd/ledgerkerneld has something to call, the way the teacher's services do.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	DBMaxConns       int32 `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32 `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLifeMin int   `mapstructure:"DB_MAX_CONN_LIFETIME_MINUTES"`
	DBMaxConnIdleMin int   `mapstructure:"DB_MAX_CONN_IDLE_MINUTES"`

	SettlementWindow        SettlementWindow `mapstructure:"SETTLEMENT_WINDOW"`
	SettlementMicroBatchMin int              `mapstructure:"SETTLEMENT_MICRO_BATCH_MINUTES"`

	IdempotencyTTLSeconds        int `mapstructure:"IDEMPOTENCY_TTL_SECONDS"`
	IdempotencyPollMillis        int `mapstructure:"IDEMPOTENCY_POLL_MILLIS"`
	IdempotencyPollMaxWaitMillis int `mapstructure:"IDEMPOTENCY_POLL_MAX_WAIT_MILLIS"`

	PostingRetryMaxAttempts   int `mapstructure:"POSTING_RETRY_MAX_ATTEMPTS"`
	PostingRetryBackoffMillis int `mapstructure:"POSTING_RETRY_BACKOFF_MILLIS"`

	NettingMode NettingMode `mapstructure:"NETTING_MODE"`

	EventExchange string `mapstructure:"EVENT_EXCHANGE"`
}

// LoadConfig reads configuration from an optional .env file at path plus the
// process environment, and returns a validated Config.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("DB_MAX_CONNS", 100)
	viper.SetDefault("DB_MIN_CONNS", 20)
	viper.SetDefault("DB_MAX_CONN_LIFETIME_MINUTES", 30)
	viper.SetDefault("DB_MAX_CONN_IDLE_MINUTES", 5)
	viper.SetDefault("SETTLEMENT_WINDOW", string(WindowHourly))
	viper.SetDefault("SETTLEMENT_MICRO_BATCH_MINUTES", 5)
	viper.SetDefault("IDEMPOTENCY_TTL_SECONDS", 86400)
	viper.SetDefault("IDEMPOTENCY_POLL_MILLIS", 50)
	viper.SetDefault("IDEMPOTENCY_POLL_MAX_WAIT_MILLIS", 2000)
	viper.SetDefault("POSTING_RETRY_MAX_ATTEMPTS", 3)
	viper.SetDefault("POSTING_RETRY_BACKOFF_MILLIS", 20)
	viper.SetDefault("NETTING_MODE", string(NettingBoth))
	viper.SetDefault("EVENT_EXCHANGE", "ledger_kernel_events")

	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_LIFETIME_MINUTES", "DB_MAX_CONN_IDLE_MINUTES",
		"SETTLEMENT_WINDOW", "SETTLEMENT_MICRO_BATCH_MINUTES",
		"IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_POLL_MILLIS", "IDEMPOTENCY_POLL_MAX_WAIT_MILLIS",
		"POSTING_RETRY_MAX_ATTEMPTS", "POSTING_RETRY_BACKOFF_MILLIS",
		"NETTING_MODE", "EVENT_EXCHANGE",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 100
	}
	if config.DBMinConns <= 0 {
		config.DBMinConns = 20
	}
	if config.SettlementMicroBatchMin <= 0 {
		config.SettlementMicroBatchMin = 5
	}
	if config.IdempotencyTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive idempotency ttl configured; coercing to default\" value=%d", config.IdempotencyTTLSeconds)
		config.IdempotencyTTLSeconds = 86400
	}
	if config.PostingRetryMaxAttempts <= 0 {
		config.PostingRetryMaxAttempts = 3
	}
	if config.PostingRetryBackoffMillis <= 0 {
		config.PostingRetryBackoffMillis = 20
	}

	switch config.SettlementWindow {
	case WindowRealTime, WindowMicroBatch, WindowHourly, WindowDaily:
	default:
		log.Printf("level=warn component=config msg=\"unrecognised settlement window; defaulting to hourly\" value=%q", config.SettlementWindow)
		config.SettlementWindow = WindowHourly
	}

	switch config.NettingMode {
	case NettingBilateral, NettingMultilateral, NettingBoth:
	default:
		log.Printf("level=warn component=config msg=\"unrecognised netting mode; defaulting to both\" value=%q", config.NettingMode)
		config.NettingMode = NettingBoth
	}

	return
}
