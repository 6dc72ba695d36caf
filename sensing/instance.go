package sensing

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/atomic"

	"go.viam.com/sensing/driver"
	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/sensor"
)

// subscriber is a session as the dispatcher sees it at one point in time.
type subscriber struct {
	sess        *session
	interval    time.Duration
	sensitivity []uint32
}

// subscription is an immutable snapshot of an instance's sessions, replaced on every mutation so
// the dispatcher never takes the instance lock.
type subscription struct {
	driverInterval time.Duration
	subscribers    []subscriber
}

// instance is the runtime state of one opened sensor, shared by all of its sessions.
type instance struct {
	desc    *sensor.Descriptor
	drv     driver.Driver
	tester  driver.SensitivityTester
	logger  logging.Logger
	metrics *sensorMetrics

	// mu serializes open, close and set config on this instance.
	mu       sync.Mutex
	sessions []*session
	applied  effectiveConfig
	retired  bool

	subs atomic.Pointer[subscription]
}

func newInstance(desc *sensor.Descriptor, logger logging.Logger, m *sensorMetrics) *instance {
	inst := &instance{
		desc:    desc,
		logger:  logger,
		metrics: m,
		applied: stoppedConfig(desc.FieldCount),
	}
	inst.subs.Store(&subscription{})
	return inst
}

// bind attaches the driver once it is constructed; the driver may push as soon as it exists.
func (inst *instance) bind(drv driver.Driver) {
	inst.drv = drv
	if tester, ok := drv.(driver.SensitivityTester); ok && inst.desc.ReportOnChange {
		inst.tester = tester
	}
}

// Push is the driver's sink. It runs on the driver's goroutine and never blocks on the instance
// lock: a session is a target if it was streaming when the sample was generated.
func (inst *instance) Push(sample sensor.Sample) {
	inst.metrics.generated.Inc()
	sub := inst.subs.Load()
	for _, target := range sub.subscribers {
		if target.interval == 0 {
			continue
		}
		target.sess.offer(sample, target, sub.driverInterval)
	}
}

// publishLocked replaces the dispatcher's snapshot with the current sessions and requests.
func (inst *instance) publishLocked() {
	subscribers := make([]subscriber, 0, len(inst.sessions))
	for _, sess := range inst.sessions {
		subscribers = append(subscribers, subscriber{
			sess:        sess,
			interval:    sess.req.interval,
			sensitivity: sess.req.fieldSensitivities(inst.desc.FieldCount),
		})
	}
	inst.subs.Store(&subscription{driverInterval: inst.applied.interval, subscribers: subscribers})
	inst.metrics.sessions.Set(float64(len(inst.sessions)))
	inst.metrics.effectiveInterval.Set(inst.applied.interval.Seconds())
}

func (inst *instance) addLocked(sess *session) {
	inst.sessions = append(slices.Clip(inst.sessions), sess)
	inst.publishLocked()
}

func (inst *instance) removeLocked(sess *session) {
	inst.sessions = slices.DeleteFunc(slices.Clone(inst.sessions), func(s *session) bool { return s == sess })
}

// requestsLocked collects every session's request, substituting override for one session.
func (inst *instance) requestsLocked(override *session, req request) []request {
	requests := make([]request, 0, len(inst.sessions))
	for _, sess := range inst.sessions {
		if sess == override {
			requests = append(requests, req)
			continue
		}
		requests = append(requests, sess.req)
	}
	return requests
}

// applyLocked pushes every value of target that differs from what the driver runs with. The
// applied config tracks each successful push, so a partial failure leaves it accurate.
func (inst *instance) applyLocked(ctx context.Context, target effectiveConfig) error {
	if target.interval != inst.applied.interval {
		if err := inst.drv.SetInterval(ctx, target.interval); err != nil {
			return internalErr(err, "set interval %v on %q", target.interval, inst.desc.Name)
		}
		inst.logger.CDebugw(ctx, "applied interval", "from", inst.applied.interval, "to", target.interval)
		inst.applied.interval = target.interval
	}
	for i, value := range target.sensitivity {
		if value == inst.applied.sensitivity[i] {
			continue
		}
		if err := inst.drv.SetSensitivity(ctx, i, value); err != nil {
			return internalErr(err, "set sensitivity %d on field %d of %q", value, i, inst.desc.Name)
		}
		inst.logger.CDebugw(ctx, "applied sensitivity", "index", i, "value", value)
		inst.applied.sensitivity[i] = value
	}
	return nil
}

// rearbitrateLocked brings the driver in line with the current sessions.
func (inst *instance) rearbitrateLocked(ctx context.Context) error {
	err := inst.applyLocked(ctx, arbitrate(inst.requestsLocked(nil, request{}), inst.desc.FieldCount))
	inst.publishLocked()
	return err
}
