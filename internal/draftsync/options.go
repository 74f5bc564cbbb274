package draftsync

import (
	"log/slog"
	"time"
)

// Defaults match the web form's behaviour.
const (
	DefaultDebounce         = 500 * time.Millisecond
	DefaultMinSpacing       = 2 * time.Second
	DefaultRemoteTimeout    = 5 * time.Second
	DefaultLocalExpiration  = 24 * time.Hour
	DefaultAutosaveInterval = 30 * time.Second
)

type options struct {
	debounce        time.Duration
	minSpacing      time.Duration
	remoteTimeout   time.Duration
	localExpiration time.Duration
	autosave        time.Duration
	now             func() time.Time
	logger          *slog.Logger
	metrics         *Metrics
}

func defaultOptions() options {
	return options{
		debounce:        DefaultDebounce,
		minSpacing:      DefaultMinSpacing,
		remoteTimeout:   DefaultRemoteTimeout,
		localExpiration: DefaultLocalExpiration,
		now:             time.Now,
		logger:          slog.Default(),
	}
}

type Option func(*options)

// WithDebounce sets the quiet interval after the last change before a save
// fires.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithMinSpacing sets the minimum time between two unforced saves.
func WithMinSpacing(d time.Duration) Option {
	return func(o *options) {
		o.minSpacing = d
	}
}

// WithRemoteTimeout bounds every remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.remoteTimeout = d
	}
}

// WithLocalExpiration sets how long a local entry stays valid.
func WithLocalExpiration(d time.Duration) Option {
	return func(o *options) {
		o.localExpiration = d
	}
}

// WithAutosave schedules a save every interval while there are unsaved
// changes. Zero disables it.
func WithAutosave(interval time.Duration) Option {
	return func(o *options) {
		o.autosave = interval
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
