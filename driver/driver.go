// Package driver defines the contract between the sensing engine and the code that talks to a
// sensor. A driver applies the arbitrated configuration and pushes samples into a Sink on its own
// schedule.
package driver

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/sensor"
)

// A Driver applies the effective configuration of one sensor instance.
type Driver interface {
	// SetInterval changes the sampling interval. Zero stops sampling.
	SetInterval(ctx context.Context, interval time.Duration) error
	// SetSensitivity changes the sensitivity of one data field, or every field with
	// sensor.IndexAll.
	SetSensitivity(ctx context.Context, index int, value uint32) error
	// Close stops sampling and releases the hardware. No sample is pushed after Close returns.
	Close(ctx context.Context) error
}

// A SensitivityTester decides whether a sample moved far enough from the last reported one to be
// worth reporting. Drivers of report-on-change sensors implement it.
type SensitivityTester interface {
	SensitivityTest(index int, value uint32, last, curr sensor.Sample) (bool, error)
}

// A Sink receives the samples generated by a driver. Implementations must not block for long:
// the driver calls it from its sampling goroutine.
type Sink interface {
	Push(sample sensor.Sample)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(sample sensor.Sample)

// Push calls f(sample).
func (f SinkFunc) Push(sample sensor.Sample) {
	f(sample)
}

// Dependencies are named external resources drivers may need, such as a chip handle keyed by the
// sensor's physical reference.
type Dependencies map[string]interface{}

// Params is everything a driver constructor receives.
type Params struct {
	Descriptor *sensor.Descriptor
	Sink       Sink
	Clock      clock.Clock
	Logger     logging.Logger
	Deps       Dependencies
	// Attributes holds the model specific attributes, already converted by the model's
	// attribute converter when one is registered.
	Attributes interface{}
}

// A Constructor creates a driver for one sensor instance. The driver must start stopped.
type Constructor func(ctx context.Context, params Params) (Driver, error)
