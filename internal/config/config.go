package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// Public origin of the web app, used for deep links, callback URLs and
	// post-exchange redirects.
	WebAppURL   string `env:"WEB_APP_URL" envDefault:"https://giftdraw.today"`
	BotUsername string `env:"BOT_USERNAME,required"`

	TelegramBotToken      string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramWebhookSecret string `env:"TELEGRAM_WEBHOOK_SECRET"`

	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET,required"`
	AvatarDir         string `env:"AVATAR_DIR" envDefault:"static/avatars"`
	AvatarSalt        string `env:"AVATAR_SALT" envDefault:""`

	PairingTTLSeconds   int  `env:"PAIRING_TTL_SECONDS" envDefault:"600"`
	RefreshTTLDays      int  `env:"REFRESH_TTL_DAYS" envDefault:"30"`
	AccessTTLMinutes    int  `env:"ACCESS_TTL_MINUTES" envDefault:"15"`
	PairingSingleUse    bool `env:"PAIRING_SINGLE_USE" envDefault:"false"`
	RotateRefreshTokens bool `env:"ROTATE_REFRESH_TOKENS" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLSeconds) * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// BotURL returns the t.me link that carries a pairing token to the bot as a
// /start parameter.
func (c *Config) BotURL(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=auth_%s", c.BotUsername, token)
}

// DeepLink returns the tg:// variant of BotURL for Telegram Desktop/Mobile.
func (c *Config) DeepLink(token string) string {
	return fmt.Sprintf("tg://resolve?domain=%s&start=auth_%s", c.BotUsername, token)
}

func (c *Config) CallbackURL(token string) string {
	return fmt.Sprintf("%s/api/auth/callback?token=%s", strings.TrimRight(c.WebAppURL, "/"), token)
}

func (c *Config) Validate(isProduction bool) error {
	if c.PairingTTLSeconds <= 0 {
		return fmt.Errorf("PAIRING_TTL_SECONDS must be positive")
	}
	if c.RefreshTTLDays <= 0 || c.AccessTTLMinutes <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if err := validateSecret("ACCESS_TOKEN_SECRET", c.AccessTokenSecret, isProduction); err != nil {
		return err
	}

	if isProduction {
		if c.TelegramBotToken == "" {
			log.Warn().Msg("TELEGRAM_BOT_TOKEN is empty in production: bot notifications and avatar fetch disabled")
		}
		if c.TelegramWebhookSecret == "" {
			log.Warn().Msg("TELEGRAM_WEBHOOK_SECRET is empty in production: webhook secret verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.AvatarSalt == "" {
			log.Warn().Msg("AVATAR_SALT is empty in production: avatar filenames will be guessable")
		}
	}

	return nil
}

func validateSecret(name, value string, isProduction bool) error {
	if !isProduction {
		return nil
	}
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
