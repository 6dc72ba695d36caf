// Package sensing is the multi-client sensing engine. Sessions open sensors from the registry,
// each asking for its own sampling interval and sensitivities. The Manager arbitrates those
// requests into the one configuration each sensor's driver runs with and fans the driver's
// samples back out to every streaming session.
package sensing

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/registry"
	"go.viam.com/sensing/sensor"
	"go.viam.com/sensing/utils"
)

// Manager owns the sensor instances and the sessions bound to them. It is safe for concurrent
// use.
type Manager struct {
	reg     *registry.Registry
	opts    options
	logger  logging.Logger
	metrics *metrics
	handles handleTable
	create  singleflight.Group

	mu        sync.RWMutex
	instances map[string]*instance
	shutdown  bool
}

// New returns a Manager serving the sensors of reg.
func New(reg *registry.Registry, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, invalidArgf("registry is required")
	}
	o := options{
		closeTimeout: defaultCloseTimeout,
		queueDepth:   defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("sensing")
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	if o.closeTimeout <= 0 {
		return nil, invalidArgf("close timeout must be positive, got %v", o.closeTimeout)
	}
	if o.queueDepth < 1 {
		return nil, invalidArgf("queue depth must be at least 1, got %d", o.queueDepth)
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, errors.Wrap(err, "registering metrics")
	}
	return &Manager{
		reg:       reg,
		opts:      o,
		logger:    o.logger,
		metrics:   m,
		instances: map[string]*instance{},
	}, nil
}

// List returns every sensor descriptor, in a stable order with stable pointers.
func (m *Manager) List() []*sensor.Descriptor {
	return m.reg.List()
}

// Open binds a new session to the sensor described by desc, which must come from List. The
// sensor's driver is created on the first open.
func (m *Manager) Open(desc *sensor.Descriptor, cbs *Callbacks) (Handle, error) {
	if desc == nil {
		return 0, invalidArgf("descriptor is required")
	}
	if !m.reg.Contains(desc) {
		return 0, invalidArgf("unknown sensor %q", desc.Name)
	}
	return m.open(desc, cbs)
}

// OpenByRef is like Open but finds the sensor by the physical reference of its device.
func (m *Manager) OpenByRef(ref string, cbs *Callbacks) (Handle, error) {
	if ref == "" {
		return 0, invalidArgf("physical reference is required")
	}
	desc, ok := m.reg.LookupRef(ref)
	if !ok {
		return 0, invalidArgf("unknown physical reference %q", ref)
	}
	return m.open(desc, cbs)
}

func (m *Manager) open(desc *sensor.Descriptor, cbs *Callbacks) (Handle, error) {
	if cbs == nil || cbs.OnData == nil {
		return 0, invalidArgf("an OnData callback is required")
	}
	onData := cbs.OnData

	for {
		inst, err := m.instanceFor(desc)
		if err != nil {
			return 0, err
		}
		inst.mu.Lock()
		if inst.retired {
			// Released between lookup and lock; the next lookup creates a fresh instance.
			inst.mu.Unlock()
			continue
		}
		sess := newSession(inst, onData, m.opts.queueDepth)
		sess.handle = m.handles.alloc(sess)
		inst.addLocked(sess)
		sess.start()
		inst.mu.Unlock()

		m.logger.Debugw("session opened", "sensor", desc.Name, "handle", sess.handle, "session", sess.id.String())
		return sess.handle, nil
	}
}

// instanceFor returns the live instance of desc, creating it if needed. Concurrent callers for the
// same sensor share one creation.
func (m *Manager) instanceFor(desc *sensor.Descriptor) (*instance, error) {
	m.mu.RLock()
	inst, ok := m.instances[desc.Name]
	closed := m.shutdown
	m.mu.RUnlock()
	if closed {
		return nil, internalErr(errors.New("manager is shut down"), "open %q", desc.Name)
	}
	if ok {
		return inst, nil
	}

	v, err, _ := m.create.Do(desc.Name, func() (interface{}, error) {
		m.mu.RLock()
		inst, ok := m.instances[desc.Name]
		m.mu.RUnlock()
		if ok {
			return inst, nil
		}
		inst, err := m.newInstance(desc)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.shutdown {
			return nil, multierr.Combine(
				internalErr(errors.New("manager is shut down"), "open %q", desc.Name),
				inst.drv.Close(context.Background()),
			)
		}
		m.instances[desc.Name] = inst
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	//nolint:forcetypeassert
	return v.(*instance), nil
}

func (m *Manager) newInstance(desc *sensor.Descriptor) (*instance, error) {
	reg, ok := registry.DriverLookup(desc.Model)
	if !ok {
		return nil, internalErr(errors.Errorf("no driver registered for model %q", desc.Model), "open %q", desc.Name)
	}
	logger := m.logger.Sublogger(desc.Name)
	inst := newInstance(desc, logger, m.metrics.forSensor(desc.Name))

	ctx := context.Background()
	drv, err := reg.Constructor(ctx, driver.Params{
		Descriptor: desc,
		Sink:       inst,
		Clock:      m.opts.clock,
		Logger:     logger.Sublogger("driver"),
		Deps:       m.opts.deps,
		Attributes: m.reg.Attributes(desc.Name),
	})
	if err != nil {
		return nil, internalErr(err, "creating driver for %q", desc.Name)
	}
	inst.bind(drv)
	logger.CInfow(ctx, "sensor instance created", "model", desc.Model, "type", desc.Type.String())
	return inst, nil
}

// Close ends a session. No callback for it starts after Close returns; one already running is
// waited for up to the close timeout. The sensor is re-arbitrated without the session.
func (m *Manager) Close(h Handle) error {
	sess, ok := m.handles.release(h)
	if !ok {
		return invalidArgf("unknown or closed %v", h)
	}
	sess.markClosed()

	inst := sess.inst
	ctx := context.Background()
	inst.mu.Lock()
	inst.removeLocked(sess)
	if err := inst.rearbitrateLocked(ctx); err != nil {
		inst.logger.CWarnw(ctx, "could not re-arbitrate after close", "handle", h, "error", err)
	}
	idle := len(inst.sessions) == 0
	inst.mu.Unlock()

	sess.wait(m.opts.closeTimeout)
	m.logger.Debugw("session closed", "sensor", inst.desc.Name, "handle", h, "session", sess.id.String())

	if idle && m.opts.idleRelease {
		m.release(ctx, inst)
	}
	return nil
}

// release tears down an instance that has no sessions left.
func (m *Manager) release(ctx context.Context, inst *instance) {
	m.mu.Lock()
	inst.mu.Lock()
	if len(inst.sessions) > 0 || inst.retired {
		inst.mu.Unlock()
		m.mu.Unlock()
		return
	}
	inst.retired = true
	if m.instances[inst.desc.Name] == inst {
		delete(m.instances, inst.desc.Name)
	}
	inst.mu.Unlock()
	m.mu.Unlock()

	if err := m.closeDriver(ctx, inst); err != nil {
		inst.logger.CWarnw(ctx, "error closing idle driver", "error", err)
	}
}

func (m *Manager) closeDriver(ctx context.Context, inst *instance) error {
	stop := utils.SlowLogger(ctx, m.opts.clock, "waiting for driver to close", "sensor", inst.desc.Name, inst.logger)
	defer stop()
	if err := inst.drv.Close(ctx); err != nil {
		return errors.Wrapf(err, "closing driver of %q", inst.desc.Name)
	}
	inst.logger.CDebugw(ctx, "sensor instance released")
	return nil
}

// Shutdown closes every session and every driver. The Manager cannot be used afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	instances := m.instances
	m.instances = map[string]*instance{}
	m.mu.Unlock()

	// Retiring first makes a racing Open retry and fail instead of joining a dying instance.
	for _, inst := range instances {
		inst.mu.Lock()
		inst.retired = true
		inst.mu.Unlock()
	}

	var errs error
	for _, h := range m.handles.live() {
		if err := m.Close(h); err != nil && !errors.Is(err, ErrInvalidArgument) {
			errs = multierr.Append(errs, err)
		}
	}
	for _, inst := range instances {
		errs = multierr.Append(errs, m.closeDriver(ctx, inst))
	}
	return errs
}

// instanceOf returns the live instance of a sensor.
func (m *Manager) instanceOf(name string) (*instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	return inst, ok
}
