// Package config defines the livebet configuration and its validation.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/crypto"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by LIVEBET_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Payment  PaymentConfig  `toml:"payment"`
	Betting  BettingConfig  `toml:"betting"`
	Admin    AdminConfig    `toml:"admin"`
	Store    StoreConfig    `toml:"store"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the paying (client) or signing (admin CLI) key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// KeyConfig converts the wallet section for the key loader.
func (w WalletConfig) KeyConfig() crypto.KeyConfig {
	return crypto.KeyConfig{
		RawPrivateKey:    w.PrivateKey,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	}
}

// ChainConfig describes the settlement chain.
type ChainConfig struct {
	RPCURL   string `toml:"rpc_url"`
	ChainID  int64  `toml:"chain_id"`
	Decimals int32  `toml:"decimals"`
	Scheme   string `toml:"scheme"`
}

// PaymentConfig drives the payment client.
type PaymentConfig struct {
	BetEndpoint     string   `toml:"bet_endpoint"`
	ConfirmEndpoint string   `toml:"confirm_endpoint"`
	RequestTimeout  duration `toml:"request_timeout"`
	WalletTimeout   duration `toml:"wallet_timeout"`
}

// BettingConfig holds the server-side betting rules. Stakes are decimal
// strings ("0.01").
type BettingConfig struct {
	MinStake         decimal.Decimal `toml:"min_stake"`
	MaxStake         decimal.Decimal `toml:"max_stake"`
	ChallengeEnabled bool            `toml:"challenge_enabled"`
	PayeeAddress     string          `toml:"payee_address"`
	QuoteSecret      string          `toml:"quote_secret"`
	QuoteTTL         duration        `toml:"quote_ttl"`
	VerifyOnchain    bool            `toml:"verify_onchain"`
	VerifyWait       duration        `toml:"verify_wait"`
}

// AdminConfig controls market resolution and operator endpoints.
type AdminConfig struct {
	Allowlist           []string `toml:"allowlist"`
	LockTTL             duration `toml:"lock_ttl"`
	RequireBoundMessage bool     `toml:"require_bound_message"`
	SignatureTTL        duration `toml:"signature_ttl"`
	APIKey              string   `toml:"api_key"`
	ServerURL           string   `toml:"server_url"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// SupabaseConfig holds PostgreSQL connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	MarketTTL  duration `toml:"market_ttl"`
}

// S3Config holds the resolution archive bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// KafkaConfig holds the domain event stream.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	BatchTimeout duration `toml:"batch_timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds operator alert channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration lets TOML carry "30s" style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with the values of config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:  8453,
			Decimals: 18,
			Scheme:   "ethereum",
		},
		Payment: PaymentConfig{
			BetEndpoint:    "http://localhost:8000/api/bets",
			RequestTimeout: duration{15 * time.Second},
			WalletTimeout:  duration{2 * time.Minute},
		},
		Betting: BettingConfig{
			MinStake:         decimal.RequireFromString("0.001"),
			MaxStake:         decimal.RequireFromString("10"),
			ChallengeEnabled: true,
			QuoteTTL:         duration{10 * time.Minute},
			VerifyWait:       duration{10 * time.Second},
		},
		Admin: AdminConfig{
			LockTTL:             duration{30 * time.Second},
			RequireBoundMessage: true,
			SignatureTTL:        duration{15 * time.Minute},
			ServerURL:           "http://localhost:8000",
		},
		Store: StoreConfig{Backend: "postgres"},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "livebet:",
			MarketTTL:  duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "livebet-archive",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "livebet.events",
			BatchTimeout: duration{50 * time.Millisecond},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "refund_required", "resolution_rejected"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"client": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// SlogLevel maps log_level to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// minQuoteSecret is the shortest accepted quote signing secret.
const minQuoteSecret = 16

// Validate checks the configuration for the selected mode and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: server, client)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	if c.Chain.Decimals < 0 || c.Chain.Decimals > 36 {
		add("chain: decimals must be 0-36, got %d", c.Chain.Decimals)
	}

	switch mode {
	case "client":
		c.validateClient(add)
	case "server":
		c.validateServer(add)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateWallet(add func(string, ...any)) {
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		add("wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}
}

func (c *Config) validateClient(add func(string, ...any)) {
	c.validateWallet(add)
	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty in client mode")
	}
	if c.Payment.BetEndpoint == "" {
		add("payment: bet_endpoint must not be empty")
	}
	if c.Payment.RequestTimeout.Duration <= 0 || c.Payment.WalletTimeout.Duration <= 0 {
		add("payment: request_timeout and wallet_timeout must be positive")
	}
}

func (c *Config) validateServer(add func(string, ...any)) {
	b := c.Betting
	if !b.MinStake.IsPositive() {
		add("betting: min_stake must be > 0")
	}
	if b.MaxStake.LessThan(b.MinStake) {
		add("betting: max_stake must not be below min_stake")
	}
	if b.ChallengeEnabled {
		if err := crypto.ValidateAddress(b.PayeeAddress); err != nil {
			add("betting: payee_address: %v", err)
		}
		if len(b.QuoteSecret) < minQuoteSecret {
			add("betting: quote_secret must be at least %d characters", minQuoteSecret)
		}
		if b.QuoteTTL.Duration <= 0 {
			add("betting: quote_ttl must be positive")
		}
	}
	if b.VerifyOnchain && c.Chain.RPCURL == "" {
		add("chain: rpc_url is required when betting.verify_onchain is set")
	}

	if len(c.Admin.Allowlist) == 0 {
		add("admin: allowlist must name at least one address")
	}
	for _, a := range c.Admin.Allowlist {
		if err := crypto.ValidateAddress(a); err != nil {
			add("admin: allowlist entry %q: %v", a, err)
		}
	}
	if c.Admin.LockTTL.Duration <= 0 {
		add("admin: lock_ttl must be positive")
	}
	if c.Admin.RequireBoundMessage && c.Admin.SignatureTTL.Duration <= 0 {
		add("admin: signature_ttl must be positive")
	}

	if !validBackends[strings.ToLower(c.Store.Backend)] {
		add("store: unknown backend %q (valid: postgres, memory)", c.Store.Backend)
	}
	if strings.EqualFold(c.Store.Backend, "postgres") {
		c.validateSupabase(add)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			add("kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			add("kafka: topic must not be empty")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server: rate_limit must be >= 0")
	}
}

func (c *Config) validateSupabase(add func(string, ...any)) {
	s := c.Supabase
	if strings.TrimSpace(s.DSN) == "" {
		if s.Host == "" {
			add("supabase: host must not be empty (or set supabase.dsn)")
		}
		if s.Port <= 0 || s.Port > 65535 {
			add("supabase: port must be 1-65535, got %d", s.Port)
		}
		if s.Database == "" {
			add("supabase: database must not be empty")
		}
	}
	if s.PoolMaxConns < 1 {
		add("supabase: pool_max_conns must be >= 1")
	}
	if s.PoolMinConns < 0 || s.PoolMinConns > s.PoolMaxConns {
		add("supabase: pool_min_conns must be between 0 and pool_max_conns")
	}
}
