package sensing

import (
	"context"
	"fmt"
	"time"

	"go.viam.com/sensing/sensor"
)

// Attribute selects what a ConfigEntry configures.
type Attribute int

// Supported attributes.
const (
	AttrInterval Attribute = iota + 1
	AttrSensitivity
)

// MaxEntries is the most entries a SetConfig or GetConfig call accepts: one per attribute kind.
const MaxEntries = 2

func (a Attribute) String() string {
	switch a {
	case AttrInterval:
		return "interval"
	case AttrSensitivity:
		return "sensitivity"
	default:
		return fmt.Sprintf("attribute(%d)", int(a))
	}
}

// A ConfigEntry is one attribute of a session's requested configuration.
type ConfigEntry struct {
	Attribute Attribute
	// Index is the field a sensitivity applies to, or sensor.IndexAll.
	Index int
	// Interval is the requested time between samples. Zero stops streaming to the session.
	Interval time.Duration
	// Sensitivity is the minimum change a field must see before a report-on-change sensor
	// reports it, in the sensor's Q31 units. Zero reports every sample.
	Sensitivity uint32
}

func (m *Manager) session(h Handle) (*session, error) {
	sess, ok := m.handles.get(h)
	if !ok {
		return nil, invalidArgf("unknown or closed %v", h)
	}
	return sess, nil
}

func checkEntryCount(n int) error {
	if n < 1 || n > MaxEntries {
		return invalidArgf("entry count must be between 1 and %d, got %d", MaxEntries, n)
	}
	return nil
}

// checkEntry validates one entry against the sensor it targets.
func checkEntry(desc *sensor.Descriptor, e ConfigEntry, setting bool) error {
	switch e.Attribute {
	case AttrInterval:
		if !setting {
			return nil
		}
		if e.Interval < 0 {
			return invalidArgf("negative interval %v", e.Interval)
		}
		if e.Interval != 0 && e.Interval < desc.MinInterval {
			return invalidArgf("interval %v is below the minimum %v of %q", e.Interval, desc.MinInterval, desc.Name)
		}
		return nil
	case AttrSensitivity:
		if desc.FieldCount == 0 {
			return unsupportedf("%q has no sensitivity", desc.Name)
		}
		if !desc.ValidIndex(e.Index) {
			return invalidArgf("field index %d out of range for %q with %d fields", e.Index, desc.Name, desc.FieldCount)
		}
		return nil
	default:
		return unsupportedf("%v", e.Attribute)
	}
}

// SetConfig stores the session's requested configuration and re-arbitrates its sensor. Every
// entry is validated before anything changes. If the driver rejects the arbitrated result the
// session keeps its previous request.
func (m *Manager) SetConfig(h Handle, entries []ConfigEntry) error {
	if err := checkEntryCount(len(entries)); err != nil {
		return err
	}
	sess, err := m.session(h)
	if err != nil {
		return err
	}
	inst := sess.inst
	for _, e := range entries {
		if err := checkEntry(inst.desc, e, true); err != nil {
			return err
		}
	}

	ctx := context.Background()
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if sess.closed.Load() {
		return invalidArgf("unknown or closed %v", h)
	}

	next := sess.req.clone()
	for _, e := range entries {
		switch e.Attribute {
		case AttrInterval:
			next.interval = e.Interval
		case AttrSensitivity:
			next = next.withSensitivity(e.Index, e.Sensitivity)
		}
	}

	target := arbitrate(inst.requestsLocked(sess, next), inst.desc.FieldCount)
	if err := inst.applyLocked(ctx, target); err != nil {
		inst.logger.CWarnw(ctx, "driver rejected configuration, rolling back", "handle", h, "error", err)
		if rbErr := inst.rearbitrateLocked(ctx); rbErr != nil {
			inst.logger.CErrorw(ctx, "could not restore previous configuration", "error", rbErr)
		}
		return err
	}
	sess.req = next
	inst.publishLocked()
	return nil
}

// GetConfig fills each entry with what the session itself last requested, not the arbitrated
// value. Unset attributes read back as zero.
func (m *Manager) GetConfig(h Handle, entries []ConfigEntry) error {
	if err := checkEntryCount(len(entries)); err != nil {
		return err
	}
	sess, err := m.session(h)
	if err != nil {
		return err
	}
	inst := sess.inst
	for _, e := range entries {
		if err := checkEntry(inst.desc, e, false); err != nil {
			return err
		}
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if sess.closed.Load() {
		return invalidArgf("unknown or closed %v", h)
	}
	for i := range entries {
		switch entries[i].Attribute {
		case AttrInterval:
			entries[i].Interval = sess.req.interval
		case AttrSensitivity:
			if entries[i].Index == sensor.IndexAll {
				entries[i].Sensitivity = sess.req.sensitivity[sensor.IndexAll]
			} else {
				entries[i].Sensitivity = sess.req.fieldSensitivity(entries[i].Index)
			}
		}
	}
	return nil
}

// Effective returns the configuration the session's sensor driver is currently running with.
func (m *Manager) Effective(h Handle) (time.Duration, []uint32, error) {
	sess, err := m.session(h)
	if err != nil {
		return 0, nil, err
	}
	inst := sess.inst
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if sess.closed.Load() {
		return 0, nil, invalidArgf("unknown or closed %v", h)
	}
	applied := inst.applied.clone()
	return applied.interval, applied.sensitivity, nil
}
