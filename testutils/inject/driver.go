// Package inject provides injectable test doubles for the interfaces the sensing engine consumes.
package inject

import (
	"context"
	"time"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/sensor"
)

// Driver is an injected driver.
type Driver struct {
	driver.Driver
	SetIntervalFunc    func(ctx context.Context, interval time.Duration) error
	SetSensitivityFunc func(ctx context.Context, index int, value uint32) error
	CloseFunc          func(ctx context.Context) error
}

// NewDriver returns a new injected driver.
func NewDriver() *Driver {
	return &Driver{}
}

// SetInterval calls the injected SetInterval or the real version.
func (d *Driver) SetInterval(ctx context.Context, interval time.Duration) error {
	if d.SetIntervalFunc == nil {
		return d.Driver.SetInterval(ctx, interval)
	}
	return d.SetIntervalFunc(ctx, interval)
}

// SetSensitivity calls the injected SetSensitivity or the real version.
func (d *Driver) SetSensitivity(ctx context.Context, index int, value uint32) error {
	if d.SetSensitivityFunc == nil {
		return d.Driver.SetSensitivity(ctx, index, value)
	}
	return d.SetSensitivityFunc(ctx, index, value)
}

// Close calls the injected Close or the real version. With neither, Close is a no-op.
func (d *Driver) Close(ctx context.Context) error {
	if d.CloseFunc == nil {
		if d.Driver == nil {
			return nil
		}
		return d.Driver.Close(ctx)
	}
	return d.CloseFunc(ctx)
}

// SensitivityTestingDriver is an injected driver that also implements driver.SensitivityTester.
type SensitivityTestingDriver struct {
	*Driver
	SensitivityTestFunc func(index int, value uint32, last, curr sensor.Sample) (bool, error)
}

// NewSensitivityTestingDriver returns a new injected report-on-change driver.
func NewSensitivityTestingDriver() *SensitivityTestingDriver {
	return &SensitivityTestingDriver{Driver: NewDriver()}
}

// SensitivityTest calls the injected SensitivityTest or the real version.
func (d *SensitivityTestingDriver) SensitivityTest(index int, value uint32, last, curr sensor.Sample) (bool, error) {
	if d.SensitivityTestFunc == nil {
		return d.Driver.Driver.(driver.SensitivityTester).SensitivityTest(index, value, last, curr)
	}
	return d.SensitivityTestFunc(index, value, last, curr)
}
