package sensing

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
)

const (
	defaultCloseTimeout = time.Second
	defaultQueueDepth   = 1024
)

type options struct {
	logger       logging.Logger
	clock        clock.Clock
	registerer   prometheus.Registerer
	deps         driver.Dependencies
	closeTimeout time.Duration
	queueDepth   int
	idleRelease  bool
}

// An Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger. Each instance logs to a sublogger named after its sensor.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock handed to drivers.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithRegisterer registers the engine's metrics with reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithDriverDeps sets the dependencies, such as chip handles, drivers are constructed with.
func WithDriverDeps(deps driver.Dependencies) Option {
	return func(o *options) {
		o.deps = deps
	}
}

// WithCloseTimeout bounds how long Close waits for an in-flight callback.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.closeTimeout = timeout
	}
}

// WithQueueDepth sets how many samples may wait for delivery per session before the oldest is
// dropped.
func WithQueueDepth(depth int) Option {
	return func(o *options) {
		o.queueDepth = depth
	}
}

// WithIdleRelease closes an instance's driver as soon as its last session closes instead of
// keeping it for a fast reopen.
func WithIdleRelease() Option {
	return func(o *options) {
		o.idleRelease = true
	}
}
