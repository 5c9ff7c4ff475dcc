package core

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// RequestConfig bounds the behavior of a single HTTP call.
type RequestConfig struct {
	// Timeout is the maximum duration for one HTTP request.
	Timeout time.Duration `env:"NAKULA_HTTP_TIMEOUT" envDefault:"3s" validate:"min=1ms"`
	// MaxTries is the number of attempts for a call. 1 disables retries.
	// Only timed-out attempts are ever retried; other failures surface
	// immediately.
	MaxTries int `env:"NAKULA_HTTP_MAX_TRIES" envDefault:"1" validate:"min=1"`
	// RetryWait is the pause between attempts when retries are enabled.
	RetryWait time.Duration `env:"NAKULA_HTTP_RETRY_WAIT" envDefault:"500ms" validate:"min=0"`
}

// DefaultRequestConfig returns the request defaults: a 3 second timeout
// and no retries.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		Timeout:   3 * time.Second,
		MaxTries:  1,
		RetryWait: 500 * time.Millisecond,
	}
}

// StreamConfig tunes one managed WebSocket connection.
type StreamConfig struct {
	// ReconnectBaseWait is the wait before the first reconnection attempt.
	// Subsequent attempts double it up to ReconnectMaxWait.
	ReconnectBaseWait time.Duration `env:"NAKULA_WS_RECONNECT_BASE_WAIT" envDefault:"300ms" validate:"min=1ms"`
	// ReconnectMaxWait caps the wait between reconnection attempts.
	ReconnectMaxWait time.Duration `env:"NAKULA_WS_RECONNECT_MAX_WAIT" envDefault:"30s" validate:"min=1ms"`
	// HandshakeTimeout bounds a single connection attempt.
	HandshakeTimeout time.Duration `env:"NAKULA_WS_HANDSHAKE_TIMEOUT" envDefault:"10s" validate:"min=1ms"`
	// PingInterval is how long the connection may stay silent before a
	// keep-alive frame is sent.
	PingInterval time.Duration `env:"NAKULA_WS_PING_INTERVAL" envDefault:"20s" validate:"min=0"`
	// IdleTimeout forces a reconnect when no frame arrives for this long.
	// Zero disables the check.
	IdleTimeout time.Duration `env:"NAKULA_WS_IDLE_TIMEOUT" envDefault:"0" validate:"min=0"`
	// RefreshAfter proactively cycles the connection after this duration,
	// for exchanges that cap connection lifetimes. Zero disables it.
	RefreshAfter time.Duration `env:"NAKULA_WS_REFRESH_AFTER" envDefault:"0" validate:"min=0"`
	// BufferSize is the capacity of each subscriber's delivery channel.
	BufferSize int `env:"NAKULA_WS_BUFFER_SIZE" envDefault:"100" validate:"min=1"`
}

// DefaultStreamConfig returns the stream defaults: 300ms base backoff
// capped at 30s, 10s handshake bound, 20s keep-alive interval, idle and
// refresh checks disabled, 100-message delivery buffers.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectBaseWait: 300 * time.Millisecond,
		ReconnectMaxWait:  30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      20 * time.Second,
		BufferSize:        100,
	}
}

var validate = validator.New()

// Validate checks the configuration against its constraints.
func (c *RequestConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid request config: %w", err)
	}
	return nil
}

// Validate checks the configuration against its constraints.
func (c *StreamConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid stream config: %w", err)
	}
	if c.ReconnectBaseWait > c.ReconnectMaxWait {
		return fmt.Errorf("invalid stream config: ReconnectBaseWait exceeds ReconnectMaxWait")
	}
	return nil
}

// RequestConfigFromEnv builds a RequestConfig from NAKULA_HTTP_*
// environment variables, falling back to defaults for unset values.
func RequestConfigFromEnv() (RequestConfig, error) {
	var cfg RequestConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StreamConfigFromEnv builds a StreamConfig from NAKULA_WS_* environment
// variables, falling back to defaults for unset values.
func StreamConfigFromEnv() (StreamConfig, error) {
	var cfg StreamConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
