package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load decodes the TOML file at path over Defaults, loads .env when present
// and applies LIVEBET_* overrides. A missing file is not an error, so a
// deployment can be configured from the environment alone. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "LIVEBET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "LIVEBET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "LIVEBET_WALLET_KEY_PASSWORD")

	// Chain
	setStr(&cfg.Chain.RPCURL, "LIVEBET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "LIVEBET_CHAIN_ID")
	setInt32(&cfg.Chain.Decimals, "LIVEBET_CHAIN_DECIMALS")
	setStr(&cfg.Chain.Scheme, "LIVEBET_CHAIN_SCHEME")

	// Payment
	setStr(&cfg.Payment.BetEndpoint, "LIVEBET_PAYMENT_BET_ENDPOINT")
	setStr(&cfg.Payment.ConfirmEndpoint, "LIVEBET_PAYMENT_CONFIRM_ENDPOINT")
	setDuration(&cfg.Payment.RequestTimeout, "LIVEBET_PAYMENT_REQUEST_TIMEOUT")
	setDuration(&cfg.Payment.WalletTimeout, "LIVEBET_PAYMENT_WALLET_TIMEOUT")

	// Betting
	setDecimal(&cfg.Betting.MinStake, "LIVEBET_BETTING_MIN_STAKE")
	setDecimal(&cfg.Betting.MaxStake, "LIVEBET_BETTING_MAX_STAKE")
	setBool(&cfg.Betting.ChallengeEnabled, "LIVEBET_BETTING_CHALLENGE_ENABLED")
	setStr(&cfg.Betting.PayeeAddress, "LIVEBET_BETTING_PAYEE_ADDRESS")
	setStr(&cfg.Betting.QuoteSecret, "LIVEBET_BETTING_QUOTE_SECRET")
	setDuration(&cfg.Betting.QuoteTTL, "LIVEBET_BETTING_QUOTE_TTL")
	setBool(&cfg.Betting.VerifyOnchain, "LIVEBET_BETTING_VERIFY_ONCHAIN")
	setDuration(&cfg.Betting.VerifyWait, "LIVEBET_BETTING_VERIFY_WAIT")

	// Admin
	setStringSlice(&cfg.Admin.Allowlist, "LIVEBET_ADMIN_ALLOWLIST")
	setDuration(&cfg.Admin.LockTTL, "LIVEBET_ADMIN_LOCK_TTL")
	setBool(&cfg.Admin.RequireBoundMessage, "LIVEBET_ADMIN_REQUIRE_BOUND_MESSAGE")
	setDuration(&cfg.Admin.SignatureTTL, "LIVEBET_ADMIN_SIGNATURE_TTL")
	setStr(&cfg.Admin.APIKey, "LIVEBET_ADMIN_API_KEY")
	setStr(&cfg.Admin.ServerURL, "LIVEBET_ADMIN_SERVER_URL")

	setStr(&cfg.Store.Backend, "LIVEBET_STORE_BACKEND")

	// Supabase
	setStr(&cfg.Supabase.DSN, "LIVEBET_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Supabase.Host, "LIVEBET_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "LIVEBET_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "LIVEBET_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "LIVEBET_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "LIVEBET_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "LIVEBET_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "LIVEBET_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "LIVEBET_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "LIVEBET_SUPABASE_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "LIVEBET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LIVEBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIVEBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIVEBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LIVEBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LIVEBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LIVEBET_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LIVEBET_REDIS_KEY_PREFIX")

	// S3
	setBool(&cfg.S3.Enabled, "LIVEBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LIVEBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LIVEBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "LIVEBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LIVEBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LIVEBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LIVEBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LIVEBET_S3_FORCE_PATH_STYLE")

	// Kafka
	setBool(&cfg.Kafka.Enabled, "LIVEBET_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "LIVEBET_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "LIVEBET_KAFKA_TOPIC")

	// Server
	setInt(&cfg.Server.Port, "LIVEBET_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "LIVEBET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "LIVEBET_SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "LIVEBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LIVEBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LIVEBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LIVEBET_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "LIVEBET_MODE")
	setStr(&cfg.LogLevel, "LIVEBET_LOG_LEVEL")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	cleaned := make([]string, 0, 4)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
