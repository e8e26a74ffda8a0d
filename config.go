package sendq

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process-wide dispatch configuration. It is immutable once the
// Dispatcher is constructed; retry budget and deadlines are never per-session
// state.
type Config struct {
	// MaxRetries is the number of re-dispatches a failed destination is
	// granted after its initial attempt. A destination that keeps failing
	// receives MaxRetries+1 total attempts before escalation.
	MaxRetries int `env:"SENDQ_MAX_RETRIES" envDefault:"3"`

	// SubmitTimeout bounds a single Submit call. Large document bundles can
	// take minutes to deliver, hence the generous default.
	SubmitTimeout time.Duration `env:"SENDQ_SUBMIT_TIMEOUT" envDefault:"2m"`

	// RetryDelay is the initial delay between retry rounds when no explicit
	// backoff strategy is configured.
	RetryDelay time.Duration `env:"SENDQ_RETRY_DELAY" envDefault:"1s"`

	// RetryDelayMax caps the delay between retry rounds.
	RetryDelayMax time.Duration `env:"SENDQ_RETRY_DELAY_MAX" envDefault:"1m"`

	// ShutdownTimeout is the maximum time Close waits for in-flight
	// attempts and resolvers before cancelling them.
	ShutdownTimeout time.Duration `env:"SENDQ_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		SubmitTimeout:   2 * time.Minute,
		RetryDelay:      1 * time.Second,
		RetryDelayMax:   1 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv builds a Config from SENDQ_* environment variables, falling
// back to the defaults for unset values.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("sendq: parse config from env: %w", err)
	}
	return c, nil
}
