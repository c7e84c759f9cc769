// Package config defines the gateway's typed configuration tree and
// provides validation helpers. Files are JSON-with-comments; string values
// may reference environment variables as ${VAR}.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Plugins   PluginsConfig   `json:"plugins"`
	Accounts  []AccountConfig `json:"accounts"`
	Feeds     FeedsConfig     `json:"feeds"`
	DataDir   string          `json:"dataDir"`
	LogLevel  string          `json:"logLevel"`
	Agents    AgentsConfig    `json:"agents"`
	Audit     AuditConfig     `json:"audit"`
	Bus       BusConfig       `json:"bus"`
	Archive   ArchiveConfig   `json:"archive"`
	Connector ConnectorConfig `json:"connector"`
	Secrets   SecretsConfig   `json:"secrets"`
}

// GatewayConfig holds the listen address and session authentication.
type GatewayConfig struct {
	Host string            `json:"host"`
	Port int               `json:"port"`
	Auth GatewayAuthConfig `json:"auth"`
}

// GatewayAuthConfig selects how gateway.connect is authenticated. Mode
// "token" compares auth.token on connect against Token; mode "none"
// accepts every session.
type GatewayAuthConfig struct {
	Mode  string `json:"mode"`
	Token string `json:"token"`
}

// PluginsConfig is the plugin allow/deny/slot policy.
type PluginsConfig struct {
	Allow []string          `json:"allow"`
	Deny  []string          `json:"deny"`
	Slots map[string]string `json:"slots"`
}

// AccountConfig declares an account registered at boot.
type AccountConfig struct {
	AccountID         string   `json:"accountId"`
	ConnectorID       string   `json:"connectorId"`
	ProviderAccountID string   `json:"providerAccountId"`
	Mode              string   `json:"mode"`
	Label             string   `json:"label"`
	AllowedSymbols    []string `json:"allowedSymbols"`
	Credentials       string   `json:"credentials,omitempty"`
}

// FeedsConfig controls market-data polling.
type FeedsConfig struct {
	Candles    FeedCandlesConfig    `json:"candles"`
	PriceTicks FeedPriceTicksConfig `json:"priceTicks"`
}

// FeedCandlesConfig enables the candle poller.
type FeedCandlesConfig struct {
	Enabled                bool           `json:"enabled"`
	PollSecondsByTimeframe map[string]int `json:"pollSecondsByTimeframe"`
}

// FeedPriceTicksConfig enables tick streaming.
type FeedPriceTicksConfig struct {
	Enabled bool `json:"enabled"`
}

// AgentsConfig controls agent workspaces.
type AgentsConfig struct {
	WorkspaceBaseDir string `json:"workspaceBaseDir"`
}

// AuditConfig configures the audit log sinks. PostgresDsn, when set,
// mirrors every entry into an audit_log table.
type AuditConfig struct {
	PostgresDsn string `json:"postgresDsn"`
}

// BusConfig configures the optional redis event fan-out.
type BusConfig struct {
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDb"`
}

// ArchiveConfig configures the optional S3 artifact archiver.
type ArchiveConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
}

// ConnectorConfig points at the broker tool-call endpoint.
type ConnectorConfig struct {
	BaseURL        string `json:"baseUrl"`
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// SecretsConfig holds the passphrase for credential sealing.
type SecretsConfig struct {
	Passphrase string `json:"passphrase"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18789,
			Auth: GatewayAuthConfig{Mode: "token", Token: "dev-token"},
		},
		Plugins: PluginsConfig{
			Allow: []string{},
			Deny:  []string{},
			Slots: map[string]string{"memory": "sqlite_fts"},
		},
		Accounts: []AccountConfig{},
		Feeds: FeedsConfig{
			Candles: FeedCandlesConfig{
				Enabled:                true,
				PollSecondsByTimeframe: map[string]int{"5m": 45, "1h": 180},
			},
			PriceTicks: FeedPriceTicksConfig{Enabled: false},
		},
		DataDir:  "data",
		LogLevel: "info",
		Agents:   AgentsConfig{WorkspaceBaseDir: "agents"},
	}
}

// Validate checks cross-field invariants the decoder cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.Host) == "" {
		return fmt.Errorf("config: gateway.host must not be empty")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: gateway.port must be in [1, 65535], got %d", c.Gateway.Port)
	}
	switch c.Gateway.Auth.Mode {
	case "none":
	case "token":
		if c.Gateway.Auth.Token == "" {
			return fmt.Errorf("config: gateway.auth.token must not be empty in token mode")
		}
	default:
		return fmt.Errorf("config: unknown gateway.auth.mode %q", c.Gateway.Auth.Mode)
	}

	for i, account := range c.Accounts {
		if account.AccountID == "" || account.ConnectorID == "" || account.ProviderAccountID == "" {
			return fmt.Errorf("config: accounts[%d] requires accountId, connectorId, providerAccountId", i)
		}
		if account.Mode == "" || account.Label == "" {
			return fmt.Errorf("config: accounts[%d] requires mode and label", i)
		}
		if account.Credentials != "" && c.Secrets.Passphrase == "" {
			return fmt.Errorf("config: accounts[%d] carries credentials but secrets.passphrase is empty", i)
		}
	}

	for timeframe, seconds := range c.Feeds.Candles.PollSecondsByTimeframe {
		if seconds < 1 {
			return fmt.Errorf("config: feeds.candles.pollSecondsByTimeframe[%q] must be >= 1", timeframe)
		}
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logLevel %q", c.LogLevel)
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("config: archive.bucket must be set when archive.enabled")
	}
	return nil
}
