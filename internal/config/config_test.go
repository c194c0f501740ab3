package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.AdminID = 42
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./web", cfg.Server.StaticDir)
	assert.Equal(t, 24*time.Hour, cfg.Auth.MaxAge.Duration)
	assert.Equal(t, time.Minute, cfg.Worker.Interval.Duration)
	assert.Equal(t, int64(1000), cfg.Ledger.WelcomeBonus)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestAuthority(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, cfg.Authority())

	cfg.Telegram.AdminID = 42
	assert.Equal(t, "tg:42", cfg.Authority())

	cfg.Ledger.ProtocolAuthority = "0xabc"
	assert.Equal(t, "0xabc", cfg.Authority())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"wallet only", func(c *Config) {
			c.Telegram.BotToken = ""
			c.Auth.WalletLogin = true
		}, ""},
		{"no login method", func(c *Config) { c.Telegram.BotToken = "" }, "wallet_login"},
		{"no authority", func(c *Config) { c.Telegram.AdminID = 0 }, "protocol_authority"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "Server.Port"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "Database.Path"},
		{"negative bonus", func(c *Config) { c.Ledger.WelcomeBonus = -1 }, "Ledger.WelcomeBonus"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "Log.Level"},
		{"bad redis addr", func(c *Config) { c.Redis.Addr = "nohostport" }, "Redis.Addr"},
		{"zero interval", func(c *Config) { c.Worker.Interval.Duration = 0 }, "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_TOMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.toml")
	content := `
[server]
port = 9090

[database]
path = "/tmp/test.db"

[telegram]
bot_token = "from-file"
admin_id = 7

[worker]
interval = "30s"

[redis]
addr = "localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LEDGER_TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("LEDGER_AUTH_MAX_AGE", "1h")
	t.Setenv("LEDGER_WELCOME_BONUS", "250")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, int64(7), cfg.Telegram.AdminID)
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval.Duration)
	assert.Equal(t, time.Hour, cfg.Auth.MaxAge.Duration)
	assert.Equal(t, int64(250), cfg.Ledger.WelcomeBonus)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_PATH", "/data/legacy.db")
	t.Setenv("LEDGER_DATABASE_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/data/legacy.db", cfg.Database.Path)

	t.Setenv("LEDGER_SERVER_PORT", "4000")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_IgnoresMalformedEnv(t *testing.T) {
	t.Setenv("LEDGER_SERVER_PORT", "not-a-number")
	t.Setenv("LEDGER_WORKER_INTERVAL", "soon")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Worker.Interval.Duration)
}
