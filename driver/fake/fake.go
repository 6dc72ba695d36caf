// Package fake implements a simulated sensor driver. Samples follow a configurable waveform and
// are generated on the injected clock, so tests driving a mock clock see exact sample counts.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/sensing/config"
	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/registry"
	"go.viam.com/sensing/sensor"
	"go.viam.com/sensing/utils"
)

// Model is the driver model name of the fake sensor.
const Model = "fake"

// Waveforms a fake sensor can produce.
const (
	WaveformConstant = "constant"
	WaveformSine     = "sine"
	WaveformRamp     = "ramp"
	WaveformStep     = "step"
)

var errClosed = errors.New("fake sensor is closed")

func init() {
	registry.RegisterDriver(Model, registry.DriverRegistration{
		Constructor: func(ctx context.Context, params driver.Params) (driver.Driver, error) {
			return NewSensor(params)
		},
		AttributeMapConverter: func(attributes config.AttributeMap) (interface{}, error) {
			conf, err := config.TransformAttributeMap[*Config](attributes)
			if err != nil {
				return nil, err
			}
			return conf, conf.Validate()
		},
	})
}

// Config is used for converting fake sensor attributes.
type Config struct {
	Waveform  string        `json:"waveform,omitempty"`
	Amplitude float64       `json:"amplitude,omitempty"`
	Period    time.Duration `json:"period,omitempty"`
	// Shift is the Q31 scaling exponent of the generated readings.
	Shift int8 `json:"shift,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate() error {
	switch conf.Waveform {
	case "", WaveformConstant, WaveformSine, WaveformRamp, WaveformStep:
	default:
		return errors.Errorf("unknown waveform %q", conf.Waveform)
	}
	if conf.Period < 0 {
		return errors.New("period cannot be negative")
	}
	if conf.Shift < -31 || conf.Shift > 31 {
		return errors.Errorf("shift %d out of range [-31, 31]", conf.Shift)
	}
	return nil
}

func (conf *Config) withDefaults() Config {
	out := *conf
	if out.Waveform == "" {
		out.Waveform = WaveformSine
	}
	if out.Amplitude == 0 {
		out.Amplitude = 1
	}
	if out.Period == 0 {
		out.Period = time.Second
	}
	return out
}

// Sensor is a simulated sensor driver.
type Sensor struct {
	desc   *sensor.Descriptor
	sink   driver.Sink
	clock  clock.Clock
	logger logging.Logger
	conf   Config
	epoch  time.Time

	mu          sync.Mutex
	interval    time.Duration
	sensitivity []uint32
	workers     utils.StoppableWorkers
	closed      bool

	generated atomic.Int64
}

// NewSensor returns a stopped fake sensor.
func NewSensor(params driver.Params) (*Sensor, error) {
	if params.Descriptor == nil {
		return nil, errors.New("fake sensor needs a descriptor")
	}
	if params.Sink == nil {
		return nil, errors.New("fake sensor needs a sample sink")
	}
	conf := &Config{}
	switch attrs := params.Attributes.(type) {
	case nil:
	case *Config:
		conf = attrs
	default:
		return nil, utils.NewUnexpectedTypeError[*Config](params.Attributes)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.NewLogger(params.Descriptor.Name)
	}
	fields := params.Descriptor.FieldCount
	if fields < 1 {
		fields = 1
	}
	return &Sensor{
		desc:        params.Descriptor,
		sink:        params.Sink,
		clock:       clk,
		logger:      logger,
		conf:        conf.withDefaults(),
		epoch:       clk.Now(),
		sensitivity: make([]uint32, fields),
	}, nil
}

// SetInterval restarts sampling at the given interval. Zero stops sampling.
func (s *Sensor) SetInterval(ctx context.Context, interval time.Duration) error {
	if interval < 0 {
		return errors.Errorf("invalid interval %v", interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if interval == s.interval {
		return nil
	}
	if s.workers != nil {
		s.workers.Stop()
		s.workers = nil
	}
	s.interval = interval
	s.logger.CDebugw(ctx, "fake sensor interval changed", "interval", interval)
	if interval == 0 {
		return nil
	}
	// The ticker is created before the worker starts so no tick between now and the worker's
	// first select is missed.
	start := s.clock.Now()
	ticker := s.clock.Ticker(interval)
	s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		s.sample(ctx, ticker, start, interval)
	})
	return nil
}

// sample emits every sample due since the previous tick, so a dropped tick only delays samples
// instead of losing them.
func (s *Sensor) sample(ctx context.Context, ticker *clock.Ticker, start time.Time, interval time.Duration) {
	next := start.Add(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := s.clock.Now()
		for !next.After(now) {
			if ctx.Err() != nil {
				return
			}
			s.generated.Inc()
			s.sink.Push(s.reading(next))
			next = next.Add(interval)
		}
	}
}

func (s *Sensor) reading(ts time.Time) sensor.Sample {
	elapsed := ts.Sub(s.epoch).Seconds()
	period := s.conf.Period.Seconds()
	readings := make([]int32, len(s.sensitivity))
	for i := range readings {
		var v float64
		switch s.conf.Waveform {
		case WaveformConstant:
			v = s.conf.Amplitude
		case WaveformRamp:
			v = s.conf.Amplitude * (elapsed/period - math.Floor(elapsed/period))
		case WaveformStep:
			if int64(math.Floor(elapsed/period))%2 == 1 {
				v = s.conf.Amplitude
			}
		default:
			v = s.conf.Amplitude * math.Sin(2*math.Pi*elapsed/period+float64(i)*math.Pi/2)
		}
		readings[i] = sensor.FloatToQ31(v, s.conf.Shift)
	}
	return sensor.Sample{Timestamp: ts, Readings: readings, Shift: s.conf.Shift}
}

// SetSensitivity records the sensitivity of one field or of every field.
func (s *Sensor) SetSensitivity(ctx context.Context, index int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if index == sensor.IndexAll {
		for i := range s.sensitivity {
			s.sensitivity[i] = value
		}
		return nil
	}
	if index < 0 || index >= len(s.sensitivity) {
		return errors.Errorf("sensitivity index %d out of range", index)
	}
	s.sensitivity[index] = value
	return nil
}

// SensitivityTest reports whether curr moved at least value away from last, on the given field or
// on any field for sensor.IndexAll.
func (s *Sensor) SensitivityTest(index int, value uint32, last, curr sensor.Sample) (bool, error) {
	return sensitivityTest(index, value, last, curr)
}

func sensitivityTest(index int, value uint32, last, curr sensor.Sample) (bool, error) {
	if len(last.Readings) != len(curr.Readings) {
		return false, errors.New("samples have different field counts")
	}
	reached := func(i int) bool {
		return math.Abs(float64(curr.Readings[i])-float64(last.Readings[i])) >= float64(value)
	}
	if index != sensor.IndexAll {
		if index < 0 || index >= len(curr.Readings) {
			return false, errors.Errorf("sensitivity index %d out of range", index)
		}
		return reached(index), nil
	}
	for i := range curr.Readings {
		if reached(i) {
			return true, nil
		}
	}
	return false, nil
}

// Close stops sampling. Later configuration calls fail.
func (s *Sensor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.workers != nil {
		s.workers.Stop()
		s.workers = nil
	}
	s.interval = 0
	return nil
}

// Interval returns the currently applied interval.
func (s *Sensor) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Sensitivity returns the currently applied sensitivity of one field.
func (s *Sensor) Sensitivity(index int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensitivity[index]
}

// Generated returns the number of samples pushed to the sink so far.
func (s *Sensor) Generated() int64 {
	return s.generated.Load()
}
