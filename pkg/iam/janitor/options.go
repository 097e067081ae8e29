package janitor

import "time"

// Options configures the janitor's worker pool.
type Options struct {
	Concurrency     int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	DequeueTimeout  time.Duration
	RetryDelay      time.Duration
	MaxRetries      int
}

func defaultOptions() Options {
	return Options{
		Concurrency:     2,
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		DequeueTimeout:  5 * time.Second,
		RetryDelay:      time.Minute,
		MaxRetries:      3,
	}
}

// Option is a functional option for configuring the janitor.
type Option func(*Options)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPollInterval sets the interval between promotion passes and idle retries.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollInterval = d
	}
}

// WithShutdownTimeout sets the maximum wait for workers to finish on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = d
	}
}

// WithRetryDelay sets the delay before a failed sweep is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}
