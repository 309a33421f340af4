package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	payee = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func validServer() Config {
	cfg := Defaults()
	cfg.Store.Backend = "memory"
	cfg.Betting.PayeeAddress = payee
	cfg.Betting.QuoteSecret = "0123456789abcdef0123"
	cfg.Admin.Allowlist = []string{admin}
	return cfg
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeFile(t, `
mode = "server"

[betting]
min_stake = "0.5"
max_stake = "25"
quote_ttl = "90s"
payee_address = "`+payee+`"

[admin]
allowlist = ["`+admin+`"]
require_bound_message = false

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.5", cfg.Betting.MinStake.String())
	assert.Equal(t, "25", cfg.Betting.MaxStake.String())
	assert.Equal(t, 90*time.Second, cfg.Betting.QuoteTTL.Duration)
	assert.False(t, cfg.Admin.RequireBoundMessage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "livebet:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Admin.LockTTL.Duration)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
	assert.True(t, cfg.Admin.RequireBoundMessage, "resolution messages are bound unless turned off")
	assert.Equal(t, 15*time.Minute, cfg.Admin.SignatureTTL.Duration)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeFile(t, "mode = "))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVEBET_MODE", "client")
	t.Setenv("LIVEBET_BETTING_MAX_STAKE", "42.5")
	t.Setenv("LIVEBET_ADMIN_ALLOWLIST", " "+admin+" , ,"+payee)
	t.Setenv("LIVEBET_REDIS_ENABLED", "false")
	t.Setenv("LIVEBET_PAYMENT_WALLET_TIMEOUT", "45s")
	t.Setenv("LIVEBET_CHAIN_ID", "not-a-number")
	t.Setenv("LIVEBET_ADMIN_SIGNATURE_TTL", "2m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "client", cfg.Mode)
	assert.Equal(t, "42.5", cfg.Betting.MaxStake.String())
	assert.Equal(t, []string{admin, payee}, cfg.Admin.Allowlist)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Payment.WalletTimeout.Duration)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID, "unparseable values are ignored")
	assert.Equal(t, 2*time.Minute, cfg.Admin.SignatureTTL.Duration)
}

func TestValidateServer(t *testing.T) {
	cfg := validServer()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"no allowlist", func(c *Config) { c.Admin.Allowlist = nil }, "allowlist must name"},
		{"bad allowlist entry", func(c *Config) { c.Admin.Allowlist = []string{"0x123"} }, "allowlist entry"},
		{"bad payee", func(c *Config) { c.Betting.PayeeAddress = "" }, "payee_address"},
		{"short secret", func(c *Config) { c.Betting.QuoteSecret = "short" }, "quote_secret"},
		{"inverted stakes", func(c *Config) { c.Betting.MaxStake = c.Betting.MinStake.Neg() }, "max_stake"},
		{"verify without rpc", func(c *Config) { c.Betting.VerifyOnchain = true }, "rpc_url"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown backend"},
		{"postgres without host", func(c *Config) { c.Store.Backend = "postgres"; c.Supabase.Host = "" }, "supabase: host"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka: brokers"},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" }, "s3: bucket"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validServer()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateChallengeDisabledSkipsPayee(t *testing.T) {
	cfg := validServer()
	cfg.Betting.ChallengeEnabled = false
	cfg.Betting.PayeeAddress = ""
	cfg.Betting.QuoteSecret = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateClient(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "client"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key")
	assert.Contains(t, err.Error(), "rpc_url")

	cfg.Wallet.EncryptedKeyPath = "/keys/wallet.json"
	cfg.Chain.RPCURL = "http://localhost:8545"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")

	cfg.Wallet.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := validServer()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Admin.APIKey = "operator"
	cfg.Supabase.Password = "pg"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Betting.QuoteSecret)
	assert.Equal(t, "***", out.Admin.APIKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Admin.Allowlist[0] = "changed"
	assert.Equal(t, admin, cfg.Admin.Allowlist[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func TestSlogLevel(t *testing.T) {
	cfg := Defaults()
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}
