// Package phy3d implements the driver for 3-axis accelerometers and gyrometers sitting on a chip
// Device. It prefers the chip's data-ready interrupt to pace sampling and falls back to polling
// on the clock. Sensitivities are mapped onto the chip's slope (any-motion) detector.
package phy3d

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/registry"
	"go.viam.com/sensing/sensor"
	"go.viam.com/sensing/utils"
)

// Model is the driver model name.
const Model = "phy_3d_sensor"

const (
	channelCount = 3
	// slopeDuration is the number of consecutive samples past the threshold before the delta
	// trigger fires.
	slopeDuration = 2
)

// ErrUnsupportedType is returned when the descriptor is neither a 3D accelerometer nor a 3D
// gyrometer.
var ErrUnsupportedType = errors.New("phy_3d_sensor only supports 3D accelerometers and gyrometers")

func init() {
	registry.RegisterDriver(Model, registry.DriverRegistration{
		Constructor: func(ctx context.Context, params driver.Params) (driver.Driver, error) {
			return NewSensor(ctx, params)
		},
	})
}

// Sensor is a phy_3d_sensor driver instance.
type Sensor struct {
	desc   *sensor.Descriptor
	dev    Device
	custom *custom
	sink   driver.Sink
	clock  clock.Clock
	logger logging.Logger

	mu               sync.Mutex
	dataReadySupport bool
	dataReadyEnabled bool
	interval         time.Duration
	sensitivities    [channelCount]uint32
	poller           utils.StoppableWorkers
	closed           bool
}

// NewSensor binds a driver to the Device found in params.Deps under the descriptor's physical
// reference (or its name when it has none) and checks whether the chip supports data-ready.
func NewSensor(ctx context.Context, params driver.Params) (*Sensor, error) {
	desc := params.Descriptor
	if desc == nil {
		return nil, errors.New("phy_3d_sensor needs a descriptor")
	}
	if params.Sink == nil {
		return nil, errors.New("phy_3d_sensor needs a sample sink")
	}
	var c *custom
	switch desc.Type {
	case sensor.TypeAccelerometer3D:
		c = customAccel
	case sensor.TypeGyrometer3D:
		c = customGyro
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "sensor %q has type %s", desc.Name, desc.Type)
	}

	ref := desc.PhysicalRef
	if ref == "" {
		ref = desc.Name
	}
	raw, ok := params.Deps[ref]
	if !ok {
		return nil, errors.Errorf("sensor %q: underlying device %q not found", desc.Name, ref)
	}
	dev, ok := raw.(Device)
	if !ok {
		return nil, utils.NewUnimplementedInterfaceError("phy3d.Device", raw)
	}

	clk := params.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.NewLogger(desc.Name)
	}

	s := &Sensor{
		desc:   desc,
		dev:    dev,
		custom: c,
		sink:   params.Sink,
		clock:  clk,
		logger: logger,
	}
	logger.CInfow(ctx, "underlying device", "device", dev.Name())

	s.mu.Lock()
	defer s.mu.Unlock()
	// Probe data-ready support by enabling it once.
	s.enableDataReadyLocked(ctx, true)
	s.dataReadySupport = s.dataReadyEnabled
	if s.dataReadyEnabled {
		s.enableDataReadyLocked(ctx, false)
	}
	return s, nil
}

// DataReadySupported reports whether the chip paces sampling with its data-ready interrupt.
func (s *Sensor) DataReadySupported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataReadySupport
}

func (s *Sensor) enableDataReadyLocked(ctx context.Context, enable bool) {
	if enable != s.dataReadyEnabled {
		var handler func()
		if enable {
			handler = s.onTrigger
		}
		trig := Trigger{Type: TriggerDataReady, Channel: s.custom.channel}
		if err := s.dev.SetTrigger(ctx, trig, handler); err != nil {
			s.logger.CInfow(ctx, "could not set data ready trigger", "enable", enable, "error", err)
		} else {
			s.dataReadyEnabled = enable
		}
	}
	s.logger.CDebugw(ctx, "data ready trigger", "enabled", s.dataReadyEnabled)
}

// onTrigger runs on the chip's interrupt context for both data-ready and delta triggers.
func (s *Sensor) onTrigger() {
	ctx := context.Background()
	if err := s.dev.SampleFetch(ctx); err != nil {
		s.logger.CErrorw(ctx, "sample fetch failed", "error", err)
		return
	}
	s.push(ctx)
}

func (s *Sensor) push(ctx context.Context) {
	sample, err := s.readSample(ctx)
	if err != nil {
		s.logger.CErrorw(ctx, "channel get failed", "error", err)
		return
	}
	s.sink.Push(sample)
}

func (s *Sensor) readSample(ctx context.Context) (sensor.Sample, error) {
	v, err := s.dev.Channel(ctx, s.custom.channel)
	if err != nil {
		return sensor.Sample{}, err
	}
	sample := sensor.Sample{
		Timestamp: s.clock.Now(),
		Readings:  s.custom.vectorToQ31(v),
		Shift:     s.custom.shift,
	}
	s.logger.Debugw("sample data", "x", sample.Readings[0], "y", sample.Readings[1], "z", sample.Readings[2])
	return sample, nil
}

// poll samples the chip on the clock when it has no data-ready interrupt.
func (s *Sensor) poll(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.dev.SampleFetch(ctx); err != nil {
			s.logger.CErrorw(ctx, "sample fetch failed", "error", err)
			continue
		}
		s.push(ctx)
	}
}

func (s *Sensor) stopPollingLocked() {
	if s.poller != nil {
		s.poller.Stop()
		s.poller = nil
	}
}

// SetInterval programs the chip's sampling frequency. Zero turns data-ready (or polling) off.
func (s *Sensor) SetInterval(ctx context.Context, interval time.Duration) error {
	s.logger.CDebugw(ctx, "set report interval", "interval", interval)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("phy_3d_sensor is closed")
	}
	if s.interval == interval {
		return nil
	}

	if interval == 0 {
		if s.dataReadySupport {
			s.enableDataReadyLocked(ctx, false)
		}
		s.stopPollingLocked()
		s.interval = 0
		return nil
	}

	us := interval.Microseconds()
	if us <= 0 {
		return errors.Errorf("interval %v is below one microsecond", interval)
	}
	odr := Value{
		Val1: 1e6 / us,
		Val2: 1e12 / us % 1e6,
	}
	if err := s.dev.SetAttribute(ctx, s.custom.channel, AttrSamplingFrequency, odr); err != nil {
		s.logger.CErrorw(ctx, "cannot set sampling frequency", "hz", odr.Float(), "error", err)
		return errors.Wrapf(err, "cannot set sampling frequency %d.%06d Hz", odr.Val1, odr.Val2)
	}
	s.logger.CDebugw(ctx, "set sampling frequency", "hz", odr.Float())

	if s.dataReadySupport {
		s.enableDataReadyLocked(ctx, true)
	} else {
		s.stopPollingLocked()
		ticker := s.clock.Ticker(interval)
		s.poller = utils.NewStoppableWorkers(func(ctx context.Context) {
			s.poll(ctx, ticker)
		})
	}
	s.interval = interval
	return nil
}

// Interval reads the applied interval back from the chip's sampling frequency, falling back to
// the last requested interval when the chip cannot report it.
func (s *Sensor) Interval(ctx context.Context) (time.Duration, error) {
	odr, err := s.dev.Attribute(ctx, s.custom.channel, AttrSamplingFrequency)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.interval, nil
	}
	microHz := odr.Micro()
	if microHz <= 0 {
		return 0, nil
	}
	return time.Duration(1e12/microHz) * time.Microsecond, nil
}

// SetSensitivity stores the sensitivity of one channel (or all of them) and programs the smallest
// stored sensitivity as the chip's slope threshold. The data-ready interrupt is paused while the
// slope detector is reconfigured.
func (s *Sensor) SetSensitivity(ctx context.Context, index int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("phy_3d_sensor is closed")
	}

	switch {
	case index >= 0 && index < channelCount:
		s.sensitivities[index] = value
	case index == sensor.IndexAll:
		for i := range s.sensitivities {
			s.sensitivities[i] = value
		}
	default:
		return errors.Errorf("set sensitivity: invalid index %d", index)
	}
	s.logger.CDebugw(ctx, "set sensitivity", "index", index, "value", value)

	sensi := s.sensitivities[0]
	for _, v := range s.sensitivities[1:] {
		sensi = min(sensi, v)
	}

	enabled := s.dataReadyEnabled
	if s.dataReadySupport && enabled {
		s.enableDataReadyLocked(ctx, false)
	}
	if err := s.setSlopeLocked(ctx, sensi); err != nil {
		s.logger.CDebugw(ctx, "set slope failed", "error", err)
		if s.dataReadySupport && enabled {
			s.enableDataReadyLocked(ctx, true)
		}
	}
	return nil
}

// Sensitivities returns the stored per channel sensitivities.
func (s *Sensor) Sensitivities() [channelCount]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensitivities
}

func (s *Sensor) setSlopeLocked(ctx context.Context, value uint32) error {
	ch := s.custom.channel
	q := int32(min(value, math.MaxInt32))
	threshold := ValueFromFloat(s.custom.fromQ31(q))
	if err := s.dev.SetAttribute(ctx, ch, AttrSlopeThreshold, threshold); err != nil {
		return errors.Wrap(err, "slope threshold")
	}
	if err := s.dev.SetAttribute(ctx, ch, AttrSlopeDuration, Value{Val1: slopeDuration}); err != nil {
		return errors.Wrap(err, "slope duration")
	}
	var handler func()
	if value != 0 {
		handler = s.onTrigger
	}
	if err := s.dev.SetTrigger(ctx, Trigger{Type: TriggerDelta, Channel: ch}, handler); err != nil {
		return errors.Wrap(err, "delta trigger")
	}
	return nil
}

// SensitivityTest reports whether curr moved at least value away from last on the given channel,
// or on any channel for sensor.IndexAll.
func (s *Sensor) SensitivityTest(index int, value uint32, last, curr sensor.Sample) (bool, error) {
	if len(last.Readings) < channelCount || len(curr.Readings) < channelCount {
		return false, errors.New("test sensitivity: samples need three readings")
	}
	reached := func(i int) bool {
		diff := int64(curr.Readings[i]) - int64(last.Readings[i])
		if diff < 0 {
			diff = -diff
		}
		return diff >= int64(value)
	}
	switch {
	case index >= 0 && index < channelCount:
		return reached(index), nil
	case index == sensor.IndexAll:
		for i := 0; i < channelCount; i++ {
			if reached(i) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errors.Errorf("test sensitivity: invalid index %d", index)
	}
}

// Close disables every trigger and stops polling.
func (s *Sensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopPollingLocked()
	if s.dataReadyEnabled {
		s.enableDataReadyLocked(ctx, false)
	}
	if err := s.dev.SetTrigger(ctx, Trigger{Type: TriggerDelta, Channel: s.custom.channel}, nil); err != nil {
		s.logger.CDebugw(ctx, "could not clear delta trigger", "error", err)
	}
	s.interval = 0
	return nil
}
