package sensing

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/sensing/logging"
	"go.viam.com/sensing/sensor"
)

// Callbacks are the notifications a session receives. OnData is required.
type Callbacks struct {
	// OnData is called with every sample delivered to the session. Calls for one session are
	// ordered by sample time and never overlap; calls for different sessions may run
	// concurrently.
	OnData func(h Handle, sample sensor.Sample)
}

// session is one client's binding to an instance.
type session struct {
	id     uuid.UUID
	handle Handle
	inst   *instance
	onData func(Handle, sensor.Sample)
	logger logging.Logger

	// req is guarded by inst.mu.
	req request

	// Dispatch state. The dispatcher may be called from several driver goroutines.
	dispatchMu   sync.Mutex
	dueInterval  time.Duration
	nextDue      time.Time
	lastReported *sensor.Sample

	queueMu    sync.Mutex
	queue      []sensor.Sample
	queueDepth int
	notify     chan struct{}
	dropLog    rate.Sometimes

	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	// deliverer is the goroutine id of deliver, so Close can tell it is called from a callback.
	deliverer atomic.Uint64
}

func newSession(inst *instance, onData func(Handle, sensor.Sample), queueDepth int) *session {
	id := uuid.New()
	return &session{
		id:         id,
		inst:       inst,
		onData:     onData,
		logger:     inst.logger,
		queueDepth: queueDepth,
		notify:     make(chan struct{}, 1),
		dropLog:    rate.Sometimes{Interval: 5 * time.Second},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *session) start() {
	goutils.PanicCapturingGo(s.deliver)
}

// offer decides whether a sample generated for the instance is due for this session, using the
// subscription as it was when the sample was generated.
func (s *session) offer(sample sensor.Sample, sub subscriber, driverInterval time.Duration) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if sub.interval != s.dueInterval {
		s.dueInterval = sub.interval
		s.nextDue = time.Time{}
	}
	ts := sample.Timestamp
	// Half a driver period of slack absorbs jitter between the driver's ticks and our schedule.
	if !s.nextDue.IsZero() && ts.Before(s.nextDue.Add(-driverInterval/2)) {
		return
	}
	if !s.changedEnough(sample, sub) {
		return
	}
	if s.nextDue.IsZero() {
		s.nextDue = ts
	}
	s.nextDue = s.nextDue.Add(sub.interval)
	if !s.nextDue.After(ts) {
		s.nextDue = ts.Add(sub.interval)
	}
	// The baseline and the delivered copy are both private to this session: callbacks may keep
	// or modify what they receive.
	reported := sample.Clone()
	s.lastReported = &reported
	s.enqueue(sample.Clone())
}

// changedEnough applies report-on-change filtering. Without a tester or a nonzero sensitivity
// every sample passes, as does the first one.
func (s *session) changedEnough(sample sensor.Sample, sub subscriber) bool {
	tester := s.inst.tester
	if tester == nil || s.lastReported == nil {
		return true
	}
	active := false
	for i, value := range sub.sensitivity {
		if value == 0 {
			continue
		}
		active = true
		reached, err := tester.SensitivityTest(i, value, *s.lastReported, sample)
		if err != nil {
			s.logger.Debugw("sensitivity test failed", "session", s.id.String(), "index", i, "error", err)
			return true
		}
		if reached {
			return true
		}
	}
	return !active
}

func (s *session) enqueue(sample sensor.Sample) {
	s.queueMu.Lock()
	if s.closed.Load() {
		s.queueMu.Unlock()
		return
	}
	if len(s.queue) >= s.queueDepth {
		s.queue = s.queue[1:]
		s.inst.metrics.dropped.Inc()
		s.dropLog.Do(func() {
			s.logger.Warnw("session is not keeping up, dropping oldest samples",
				"session", s.id.String(), "queue_depth", s.queueDepth)
		})
	}
	s.queue = append(s.queue, sample)
	s.queueMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) dequeue() (sensor.Sample, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return sensor.Sample{}, false
	}
	sample := s.queue[0]
	s.queue[0] = sensor.Sample{}
	s.queue = s.queue[1:]
	return sample, true
}

// deliver is the session's only callback goroutine.
func (s *session) deliver() {
	defer close(s.done)
	s.deliverer.Store(goroutineID())
	for {
		select {
		case <-s.stop:
			return
		case <-s.notify:
		}
		for {
			sample, ok := s.dequeue()
			if !ok {
				break
			}
			if s.closed.Load() {
				return
			}
			s.onData(s.handle, sample)
			s.inst.metrics.delivered.Inc()
		}
	}
}

// markClosed stops delivery: no callback starts after it returns. It reports false if the session
// was already closed.
func (s *session) markClosed() bool {
	if s.closed.Swap(true) {
		return false
	}
	close(s.stop)
	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()
	return true
}

// calledFromCallback reports whether the current goroutine is this session's delivery goroutine.
func (s *session) calledFromCallback() bool {
	id := s.deliverer.Load()
	return id != 0 && id == goroutineID()
}

// wait blocks until the delivery goroutine exits or timeout passes, and reports whether it
// exited. The timeout is in wall time: a callback blocked on a mock clock must not hang Close.
// Called from the session's own callback it returns at once, since the delivery goroutine exits
// as soon as that callback returns.
func (s *session) wait(timeout time.Duration) bool {
	if s.calledFromCallback() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		s.logger.Warnw("callback still running after close timeout", "session", s.id.String(), "timeout", timeout)
		return false
	}
}

// goroutineID parses the id out of the "goroutine N [status]:" header of the current stack. It
// returns 0 if the header cannot be parsed.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
