// Package config defines the configuration of the ledger service. Values are
// built from defaults, an optional TOML file, a .env file and LEDGER_*
// environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Telegram TelegramConfig `toml:"telegram"`
	Auth     AuthConfig     `toml:"auth"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Redis    RedisConfig    `toml:"redis"`
	Worker   WorkerConfig   `toml:"worker"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds HTTP server parameters
type ServerConfig struct {
	Port      int    `toml:"port" validate:"min=1,max=65535"`
	StaticDir string `toml:"static_dir"`
}

// DatabaseConfig holds sqlite parameters
type DatabaseConfig struct {
	Path      string `toml:"path" validate:"required"`
	CacheSize int    `toml:"cache_size" validate:"min=1"`
}

// TelegramConfig holds bot credentials. An empty token disables the bot and
// Telegram login.
type TelegramConfig struct {
	BotToken  string `toml:"bot_token"`
	AdminID   int64  `toml:"admin_id" validate:"min=0"`
	WebAppURL string `toml:"webapp_url" validate:"omitempty,url"`
	// ChannelID is a numeric chat id or @username for public announcements
	ChannelID string `toml:"channel_id"`
}

// AuthConfig holds request authentication parameters
type AuthConfig struct {
	MaxAge      duration `toml:"max_age"`
	WalletLogin bool     `toml:"wallet_login"`
}

// LedgerConfig holds protocol parameters
type LedgerConfig struct {
	// ProtocolAuthority administers the pause flag. Defaults to the Telegram admin.
	ProtocolAuthority string `toml:"protocol_authority"`
	WelcomeBonus      int64  `toml:"welcome_bonus" validate:"min=0"`
}

// RedisConfig holds the optional event publisher connection. An empty Addr
// disables it.
type RedisConfig struct {
	Addr          string `toml:"addr" validate:"omitempty,hostname_port"`
	Password      string `toml:"password"`
	DB            int    `toml:"db" validate:"min=0"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// WorkerConfig holds deadline worker parameters
type WorkerConfig struct {
	Interval  duration `toml:"interval"`
	BatchSize int      `toml:"batch_size" validate:"min=1"`
}

// LogConfig holds logging parameters
type LogConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Format      string `toml:"format" validate:"oneof=json text"`
	Environment string `toml:"environment"`
}

// duration wraps time.Duration so the TOML decoder can parse "5m" or "30s"
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      8080,
			StaticDir: "./web",
		},
		Database: DatabaseConfig{
			Path:      "/app/data/ledger.db",
			CacheSize: 1024,
		},
		Auth: AuthConfig{
			MaxAge: duration{24 * time.Hour},
		},
		Ledger: LedgerConfig{
			WelcomeBonus: 1000,
		},
		Worker: WorkerConfig{
			Interval:  duration{time.Minute},
			BatchSize: 50,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "text",
			Environment: "dev",
		},
	}
}

// Authority returns the protocol authority identity
func (c *Config) Authority() string {
	if c.Ledger.ProtocolAuthority != "" {
		return c.Ledger.ProtocolAuthority
	}
	if c.Telegram.AdminID != 0 {
		return "tg:" + strconv.FormatInt(c.Telegram.AdminID, 10)
	}
	return ""
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag()))
		}
	}

	if c.Authority() == "" {
		errs = append(errs, "ledger: protocol_authority or telegram admin_id must be set")
	}
	if c.Telegram.BotToken == "" && !c.Auth.WalletLogin {
		errs = append(errs, "auth: either telegram bot_token or wallet_login must be enabled")
	}
	if c.Auth.MaxAge.Duration <= 0 {
		errs = append(errs, "auth: max_age must be positive")
	}
	if c.Worker.Interval.Duration <= 0 {
		errs = append(errs, "worker: interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
