package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Session cookie carried between the web app and the API.
const (
	SessionCookieName   = "telegram_session"
	SessionCookieMaxAge = 30 * 24 * time.Hour
)

// Rate limits applied to unauthenticated auth endpoints, per client IP per minute.
const (
	PairingIssueRateLimit = 10
	RefreshRateLimit      = 30
)
