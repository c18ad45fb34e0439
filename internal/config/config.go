package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Migration MigrationConfig `mapstructure:"migration"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type NodeConfig struct {
	RPCEndpoint    string        `mapstructure:"rpc_endpoint"`
	WSEndpoint     string        `mapstructure:"ws_endpoint"`
	ChainID        uint64        `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// GenesisTimestamp anchors slot-to-wallclock conversion (unix ms).
	GenesisTimestamp int64 `mapstructure:"genesis_timestamp"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type ProcessorConfig struct {
	// Workers bounds the number of operations handled concurrently.
	Workers int64 `mapstructure:"workers"`
	// EventGraceDelay is the wait between block finality and the first
	// event query; events may not be queryable immediately.
	EventGraceDelay time.Duration `mapstructure:"event_grace_delay"`
}

type MigrationConfig struct {
	// SecretKey signs the approve/create-pair/add-liquidity operations.
	// Absence is a fatal configuration error for migration attempts only.
	SecretKey string `mapstructure:"secret_key"`
	// AccountAddress is the on-chain account holding the migrated funds.
	AccountAddress string `mapstructure:"account_address"`
	// BatchDelay paces consecutive add-liquidity submissions.
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

type RealtimeConfig struct {
	CentrifugoURL string   `mapstructure:"centrifugo_url"`
	CentrifugoKey string   `mapstructure:"centrifugo_key"`
	NotifyURLs    []string `mapstructure:"notify_urls"`
	// DiscordWebhook receives a launch embed for every new token. Empty
	// disables the alert.
	DiscordWebhook string `mapstructure:"discord_webhook"`
	// FrontendURL builds the token page link in launch alerts.
	FrontendURL string `mapstructure:"frontend_url"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("INDEXER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("node.rpc_endpoint", "https://mainnet.massa.net/api/v2")
	viper.SetDefault("node.ws_endpoint", "wss://mainnet.massa.net/ws")
	viper.SetDefault("node.chain_id", 77658377)
	viper.SetDefault("node.request_timeout", "30s")
	viper.SetDefault("node.genesis_timestamp", 1705312800000)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("processor.workers", 8)
	viper.SetDefault("processor.event_grace_delay", "1s")
	viper.SetDefault("migration.batch_delay", "2s")
	viper.SetDefault("realtime.frontend_url", "https://pump-dusa.netlify.app/trade/")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
