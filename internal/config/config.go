package config

import (
	"os"
	"strconv"
	"time"

	"chamber/internal/database"
	"chamber/internal/external"
	"chamber/internal/ledger"
	"chamber/internal/lifecycle"
	"chamber/internal/messaging"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	Database      database.Config
	NATS          messaging.Config
	Ledger        ledger.Config
	Wallet        external.WalletConfig
	Metadata      external.MetadataConfig
	Elasticsearch ElasticsearchConfig
	Lifecycle     lifecycle.Params

	// Bid coordinator
	SubmitTimeout time.Duration
	PendingGrace  time.Duration

	// Settlement watcher
	SettleCheckInterval time.Duration
	AutoSettle          bool
}

// Load reads configuration from the environment, with an optional .env
// file for local development
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8082"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "chamber"),
			Password:           getEnv("DB_PASSWORD", "chamber123"),
			DBName:             getEnv("DB_NAME", "chamber"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "chamber"),
			ClientID:  getEnv("NATS_CLIENT_ID", "chamber-api"),
		},

		Ledger: ledger.Config{
			RPCURL:       getEnv("LEDGER_RPC_URL", "http://localhost:8545"),
			PollInterval: getEnvDuration("LEDGER_POLL_INTERVAL", 2*time.Second),
			PollTimeout:  getEnvDuration("LEDGER_POLL_TIMEOUT", 10*time.Second),
			BatchLimit:   getEnvInt("LEDGER_BATCH_LIMIT", 500),
			MaxBackoff:   getEnvDuration("LEDGER_MAX_BACKOFF", 30*time.Second),
		},

		Wallet: external.WalletConfig{
			BaseURL: getEnv("WALLET_BRIDGE_URL", "http://localhost:8560"),
			Timeout: getEnvDuration("WALLET_TIMEOUT", 15*time.Second),
		},

		Metadata: external.MetadataConfig{
			GatewayURL: getEnv("METADATA_GATEWAY_URL", "https://ipfs.io/ipfs/"),
			Timeout:    getEnvDuration("METADATA_TIMEOUT", 10*time.Second),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Lifecycle: lifecycle.Params{
			SoftCloseWindow:    getEnvDuration("SOFT_CLOSE_WINDOW", 300*time.Second),
			ExtensionIncrement: getEnvDuration("EXTENSION_INCREMENT", 300*time.Second),
			MaxExtensionCount:  getEnvInt("MAX_EXTENSION_COUNT", 3),
		},

		SubmitTimeout: getEnvDuration("BID_SUBMIT_TIMEOUT", 20*time.Second),
		PendingGrace:  getEnvDuration("BID_PENDING_GRACE", 60*time.Second),

		SettleCheckInterval: getEnvDuration("SETTLE_CHECK_INTERVAL", 15*time.Second),
		AutoSettle:          getEnv("AUTO_SETTLE", "false") == "true",
	}
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable value or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable value or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
