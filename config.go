package oauth

import "log/slog"

// Config holds OAuth server configuration. The zero value is secure: secure
// transport is required and refresh tokens rotate on use.
type Config struct {
	// AllowInsecureTransport permits requests over an insecure scheme on both
	// endpoints. Only enable for development and tests.
	// Default: false (secure transport required)
	AllowInsecureTransport bool

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 600 (10 minutes)
	AuthorizationCodeTTL int64 // seconds

	// AccessTokenTTL is how long access tokens are valid.
	// Default: 3600 (1 hour)
	AccessTokenTTL int64 // seconds

	// DisableRefreshTokenRotation keeps the prior token record valid after a
	// refresh instead of atomically replacing it. With rotation enabled
	// (default) the old refresh value cannot be replayed.
	DisableRefreshTokenRotation bool
}

// applyDefaults fills in default configuration values and warns about
// explicitly weakened settings.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config == nil {
		config = &Config{}
	}

	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600
	}

	if config.AllowInsecureTransport {
		logger.Warn("SECURITY WARNING: insecure transport is allowed",
			"risk", "credentials and tokens may be exposed in transit",
			"recommendation", "leave AllowInsecureTransport unset outside development")
	}
	if config.DisableRefreshTokenRotation {
		logger.Warn("SECURITY NOTICE: refresh token rotation is disabled",
			"risk", "a leaked refresh token stays usable indefinitely",
			"recommendation", "leave DisableRefreshTokenRotation unset")
	}

	return config
}
