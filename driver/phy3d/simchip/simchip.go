// Package simchip simulates a 3-axis motion chip for the phy3d driver. Interrupts fire on a
// clock ticker at the programmed sampling frequency.
package simchip

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/sensing/driver/phy3d"
	"go.viam.com/sensing/utils"
)

// DefaultFrequencyHz is the internal rate used when only the delta trigger is armed and no
// sampling frequency was programmed.
const DefaultFrequencyHz = 100

// A Signal returns the chip's reading at the given time since the chip was created.
type Signal func(elapsed time.Duration) r3.Vector

// Gravity is a chip lying flat and still.
func Gravity(time.Duration) r3.Vector {
	return r3.Vector{Z: 9.80665}
}

// Option configures a Chip.
type Option func(*Chip)

// WithoutDataReady makes the chip reject the data-ready trigger, forcing drivers to poll.
func WithoutDataReady() Option {
	return func(c *Chip) {
		c.dataReady = false
	}
}

// WithSignal sets the reading generator.
func WithSignal(signal Signal) Option {
	return func(c *Chip) {
		c.signal = signal
	}
}

// WithClock sets the clock interrupts are paced by.
func WithClock(clk clock.Clock) Option {
	return func(c *Chip) {
		c.clock = clk
	}
}

type attrKey struct {
	ch   phy3d.Channel
	attr phy3d.Attribute
}

// Chip is a simulated phy3d.Device.
type Chip struct {
	name      string
	dataReady bool
	signal    Signal
	clock     clock.Clock
	epoch     time.Time

	mu        sync.Mutex
	attrs     map[attrKey]phy3d.Value
	triggers  map[phy3d.Trigger]func()
	latched   r3.Vector
	reference r3.Vector
	overSlope int
	fetches   int
	failures  map[phy3d.Attribute]error
	workers   utils.StoppableWorkers
}

// New returns a chip with no trigger armed.
func New(name string, opts ...Option) *Chip {
	c := &Chip{
		name:      name,
		dataReady: true,
		signal:    Gravity,
		clock:     clock.New(),
		attrs:     map[attrKey]phy3d.Value{},
		triggers:  map[phy3d.Trigger]func(){},
		failures:  map[phy3d.Attribute]error{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.epoch = c.clock.Now()
	return c
}

// Name returns the chip name.
func (c *Chip) Name() string {
	return c.name
}

// FailAttribute makes every later SetAttribute of attr return err. A nil err clears the failure.
func (c *Chip) FailAttribute(attr phy3d.Attribute, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, attr)
		return
	}
	c.failures[attr] = err
}

// Fetches returns how many samples were latched so far.
func (c *Chip) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// TriggerArmed reports whether a handler is installed for trig.
func (c *Chip) TriggerArmed(trig phy3d.Trigger) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.triggers[trig]
	return ok
}

// SampleFetch latches the current signal value.
func (c *Chip) SampleFetch(ctx context.Context) error {
	v := c.signal(c.clock.Since(c.epoch))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latched = v
	c.fetches++
	return nil
}

// Channel returns the latched reading.
func (c *Chip) Channel(ctx context.Context, ch phy3d.Channel) (r3.Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latched, nil
}

// SetAttribute stores an attribute. Changing the sampling frequency restarts the interrupt timer.
func (c *Chip) SetAttribute(ctx context.Context, ch phy3d.Channel, attr phy3d.Attribute, val phy3d.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[attr]; err != nil {
		return err
	}
	if attr == phy3d.AttrSamplingFrequency && val.Micro() < 0 {
		return errors.New("sampling frequency cannot be negative")
	}
	c.attrs[attrKey{ch, attr}] = val
	if attr == phy3d.AttrSamplingFrequency {
		c.restartLocked()
	}
	return nil
}

// Attribute returns a stored attribute.
func (c *Chip) Attribute(ctx context.Context, ch phy3d.Channel, attr phy3d.Attribute) (phy3d.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.attrs[attrKey{ch, attr}]
	if !ok {
		return phy3d.Value{}, errors.Errorf("attribute %d not set on %s", attr, ch)
	}
	return val, nil
}

// SetTrigger arms or disarms an interrupt.
func (c *Chip) SetTrigger(ctx context.Context, trig phy3d.Trigger, handler func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trig.Type == phy3d.TriggerDataReady && !c.dataReady {
		return errors.New("data ready trigger not supported")
	}
	if handler == nil {
		delete(c.triggers, trig)
	} else {
		c.triggers[trig] = handler
	}
	if trig.Type == phy3d.TriggerDelta {
		c.reference = c.signal(c.clock.Since(c.epoch))
		c.overSlope = 0
	}
	c.restartLocked()
	return nil
}

// Close stops the interrupt timer.
func (c *Chip) Close() {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

func (c *Chip) periodLocked() time.Duration {
	for key, val := range c.attrs {
		if key.attr == phy3d.AttrSamplingFrequency && val.Micro() > 0 {
			return time.Duration(float64(time.Second) * 1e6 / float64(val.Micro()))
		}
	}
	return time.Second / DefaultFrequencyHz
}

// restartLocked replaces the interrupt timer. The old worker is stopped in the background since
// it may be blocked on c.mu.
func (c *Chip) restartLocked() {
	if old := c.workers; old != nil {
		c.workers = nil
		goutils.PanicCapturingGo(old.Stop)
	}
	if len(c.triggers) == 0 {
		return
	}
	ticker := c.clock.Ticker(c.periodLocked())
	c.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, handler := range c.due(ctx) {
				handler()
			}
		}
	})
}

// due returns the handlers that fire on this tick.
func (c *Chip) due(ctx context.Context) []func() {
	now := c.signal(c.clock.Since(c.epoch))
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	var handlers []func()
	for trig, handler := range c.triggers {
		switch trig.Type {
		case phy3d.TriggerDataReady:
			handlers = append(handlers, handler)
		case phy3d.TriggerDelta:
			threshold := c.attrs[attrKey{trig.Channel, phy3d.AttrSlopeThreshold}].Float()
			duration := c.attrs[attrKey{trig.Channel, phy3d.AttrSlopeDuration}].Val1
			delta := now.Sub(c.reference)
			if math.Max(math.Abs(delta.X), math.Max(math.Abs(delta.Y), math.Abs(delta.Z))) < threshold {
				c.overSlope = 0
				continue
			}
			c.overSlope++
			if int64(c.overSlope) >= duration {
				c.overSlope = 0
				c.reference = now
				handlers = append(handlers, handler)
			}
		}
	}
	return handlers
}
