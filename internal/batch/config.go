package batch

import "time"

const (
	DefaultConcurrency     = 3
	MaxConcurrency         = 10
	DefaultRequestInterval = time.Second
	MaxRequestInterval     = 60 * time.Second

	// MaxAttempts is the total number of tries per job, first call included.
	MaxAttempts = 3
	// MaxBackoff caps any rate-limit wait, including server-supplied ones.
	MaxBackoff = 60 * time.Second
	// InitialBackoff is used when a 429 carries no Retry-After.
	InitialBackoff = 5 * time.Second
)

// Config controls one batch run.
type Config struct {
	// Concurrency is the number of classification calls in flight at once.
	Concurrency int
	// RequestInterval is how long a worker waits after finishing a job
	// before taking the next one.
	RequestInterval time.Duration
}

// Normalize clamps c to sane bounds. Zero Concurrency means the default;
// negative intervals become zero.
func (c Config) Normalize() Config {
	switch {
	case c.Concurrency <= 0:
		c.Concurrency = DefaultConcurrency
	case c.Concurrency > MaxConcurrency:
		c.Concurrency = MaxConcurrency
	}
	switch {
	case c.RequestInterval < 0:
		c.RequestInterval = 0
	case c.RequestInterval > MaxRequestInterval:
		c.RequestInterval = MaxRequestInterval
	}
	return c
}

// FromMillis builds a Config from the integer settings users configure.
func FromMillis(concurrency, intervalMS int) Config {
	return Config{
		Concurrency:     concurrency,
		RequestInterval: time.Duration(intervalMS) * time.Millisecond,
	}.Normalize()
}

// backoff returns the wait before retrying after a rate limit on attempt.
func backoff(retryAfter time.Duration, attempt int) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = InitialBackoff
		for i := 1; i < attempt && d < MaxBackoff; i++ {
			d *= 2
		}
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}
