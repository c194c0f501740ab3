package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the configuration from defaults, the TOML file at path (skipped
// when path is empty), a .env file if present and environment overrides. The
// returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads LEDGER_* environment variables, plus the legacy
// PORT, DATABASE_PATH, TELEGRAM_BOT_TOKEN, ADMIN_TELEGRAM_ID, WEB_APP_URL and
// CHANNEL_ID names, and overwrites the matching fields.
func applyEnvOverrides(cfg *Config) {
	// Legacy names first so LEDGER_* wins
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.Path, "DATABASE_PATH")
	setStr(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setInt64(&cfg.Telegram.AdminID, "ADMIN_TELEGRAM_ID")
	setStr(&cfg.Telegram.WebAppURL, "WEB_APP_URL")
	setStr(&cfg.Telegram.ChannelID, "CHANNEL_ID")

	// ── Server ──
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStr(&cfg.Server.StaticDir, "LEDGER_SERVER_STATIC_DIR")

	// ── Database ──
	setStr(&cfg.Database.Path, "LEDGER_DATABASE_PATH")
	setInt(&cfg.Database.CacheSize, "LEDGER_DATABASE_CACHE_SIZE")

	// ── Telegram ──
	setStr(&cfg.Telegram.BotToken, "LEDGER_TELEGRAM_BOT_TOKEN")
	setInt64(&cfg.Telegram.AdminID, "LEDGER_TELEGRAM_ADMIN_ID")
	setStr(&cfg.Telegram.WebAppURL, "LEDGER_TELEGRAM_WEBAPP_URL")
	setStr(&cfg.Telegram.ChannelID, "LEDGER_TELEGRAM_CHANNEL_ID")

	// ── Auth ──
	setDuration(&cfg.Auth.MaxAge, "LEDGER_AUTH_MAX_AGE")
	setBool(&cfg.Auth.WalletLogin, "LEDGER_AUTH_WALLET_LOGIN")

	// ── Ledger ──
	setStr(&cfg.Ledger.ProtocolAuthority, "LEDGER_PROTOCOL_AUTHORITY")
	setInt64(&cfg.Ledger.WelcomeBonus, "LEDGER_WELCOME_BONUS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.ChannelPrefix, "LEDGER_REDIS_CHANNEL_PREFIX")

	// ── Worker ──
	setDuration(&cfg.Worker.Interval, "LEDGER_WORKER_INTERVAL")
	setInt(&cfg.Worker.BatchSize, "LEDGER_WORKER_BATCH_SIZE")

	// ── Log ──
	setStr(&cfg.Log.Level, "LEDGER_LOG_LEVEL")
	setStr(&cfg.Log.Format, "LEDGER_LOG_FORMAT")
	setStr(&cfg.Log.Environment, "LEDGER_LOG_ENVIRONMENT")
}

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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
