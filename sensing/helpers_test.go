package sensing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/registry"
	"go.viam.com/sensing/sensor"
	"go.viam.com/sensing/testutils/inject"
)

const testMinInterval = 10 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	samples []sensor.Sample
}

func (r *recorder) onData(h Handle, sample sensor.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func (r *recorder) callbacks() *Callbacks {
	return &Callbacks{OnData: r.onData}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *recorder) all() []sensor.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sensor.Sample{}, r.samples...)
}

// driverCalls records what the engine pushed to an injected driver.
type driverCalls struct {
	mu          sync.Mutex
	intervals   []time.Duration
	sensitivity map[int]uint32
	closed      int
}

func (c *driverCalls) lastInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.intervals) == 0 {
		return 0
	}
	return c.intervals[len(c.intervals)-1]
}

func (c *driverCalls) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newRecordingDriver() (*inject.Driver, *driverCalls) {
	calls := &driverCalls{sensitivity: map[int]uint32{}}
	drv := inject.NewDriver()
	drv.SetIntervalFunc = func(ctx context.Context, interval time.Duration) error {
		calls.mu.Lock()
		defer calls.mu.Unlock()
		calls.intervals = append(calls.intervals, interval)
		return nil
	}
	drv.SetSensitivityFunc = func(ctx context.Context, index int, value uint32) error {
		calls.mu.Lock()
		defer calls.mu.Unlock()
		calls.sensitivity[index] = value
		return nil
	}
	drv.CloseFunc = func(ctx context.Context) error {
		calls.mu.Lock()
		defer calls.mu.Unlock()
		calls.closed++
		return nil
	}
	return drv, calls
}

// injectedModel is a driver model whose instances are built by the test.
type injectedModel struct {
	name string

	mu    sync.Mutex
	sinks []driver.Sink
}

func (im *injectedModel) built() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return len(im.sinks)
}

// sink returns the sink of the most recently built driver.
func (im *injectedModel) sink() driver.Sink {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.sinks[len(im.sinks)-1]
}

func registerInjected(t *testing.T, build func() driver.Driver) *injectedModel {
	t.Helper()
	im := &injectedModel{name: "inject-" + t.Name()}
	registry.RegisterDriver(im.name, registry.DriverRegistration{
		Constructor: func(ctx context.Context, params driver.Params) (driver.Driver, error) {
			im.mu.Lock()
			defer im.mu.Unlock()
			im.sinks = append(im.sinks, params.Sink)
			return build(), nil
		},
	})
	t.Cleanup(func() {
		registry.DeregisterDriver(im.name)
	})
	return im
}

func accelDescriptor(model string) sensor.Descriptor {
	return sensor.Descriptor{
		Type:         sensor.TypeAccelerometer3D,
		Name:         "accel-0",
		FriendlyName: "Accelerometer",
		Model:        model,
		PhysicalRef:  "i2c-1:0x68",
		MinInterval:  testMinInterval,
		FieldCount:   3,
	}
}

func lightDescriptor(model string) sensor.Descriptor {
	return sensor.Descriptor{
		Type:        sensor.TypeAmbientLight,
		Name:        "light-0",
		Model:       model,
		MinInterval: testMinInterval,
	}
}

func newTestManager(t *testing.T, descs []sensor.Descriptor, opts ...Option) (*Manager, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock()
	reg, err := registry.New(descs)
	test.That(t, err, test.ShouldBeNil)
	opts = append([]Option{WithClock(mockClock), WithLogger(logging.NewTestLogger(t))}, opts...)
	m, err := New(reg, opts...)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, m.Shutdown(context.Background()), test.ShouldBeNil)
	})
	return m, mockClock
}

func mustOpen(t *testing.T, m *Manager, name string, cbs *Callbacks) Handle {
	t.Helper()
	desc, ok := m.reg.Lookup(name)
	test.That(t, ok, test.ShouldBeTrue)
	h, err := m.Open(desc, cbs)
	test.That(t, err, test.ShouldBeNil)
	return h
}

func setInterval(t *testing.T, m *Manager, h Handle, interval time.Duration) {
	t.Helper()
	test.That(t, m.SetConfig(h, []ConfigEntry{{Attribute: AttrInterval, Interval: interval}}), test.ShouldBeNil)
}

func sampleAt(ts time.Time, readings ...int32) sensor.Sample {
	return sensor.Sample{Timestamp: ts, Readings: readings}
}
