package core

import (
	"log/slog"
	"net/http"
	"time"
)

// Options carries adapter construction settings. APIKey falls back to the
// provider's environment variable when empty; BaseURL overrides the default
// endpoint and is mandatory for the local provider. MaxRetries is advisory
// metadata for the caller's retry policy; adapters never retry on their own.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultTimeout applies when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// EffectiveTimeout returns the configured timeout or the default.
func (o Options) EffectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// EffectiveLogger returns the configured logger or slog.Default.
func (o Options) EffectiveLogger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
