package sensing

import (
	"maps"
	"time"

	"github.com/samber/lo"

	"go.viam.com/sensing/sensor"
)

// request is the configuration one session asked for.
type request struct {
	// interval of zero means the session is not streaming.
	interval time.Duration
	// sensitivity is keyed by field index or sensor.IndexAll. A concrete index overrides the
	// IndexAll value for that field.
	sensitivity map[int]uint32
}

func (r request) clone() request {
	return request{interval: r.interval, sensitivity: maps.Clone(r.sensitivity)}
}

func (r request) streaming() bool {
	return r.interval > 0
}

// fieldSensitivity resolves the sensitivity the request asks for on one field. Unset reads as 0.
func (r request) fieldSensitivity(index int) uint32 {
	if v, ok := r.sensitivity[index]; ok {
		return v
	}
	return r.sensitivity[sensor.IndexAll]
}

// fieldSensitivities resolves every field.
func (r request) fieldSensitivities(fieldCount int) []uint32 {
	return lo.Times(fieldCount, r.fieldSensitivity)
}

// withSensitivity returns a copy with one sensitivity entry stored. Storing IndexAll replaces
// every concrete entry.
func (r request) withSensitivity(index int, value uint32) request {
	out := r.clone()
	if out.sensitivity == nil {
		out.sensitivity = map[int]uint32{}
	}
	if index == sensor.IndexAll {
		clear(out.sensitivity)
	}
	out.sensitivity[index] = value
	return out
}

// effectiveConfig is what one instance's driver should be running with.
type effectiveConfig struct {
	interval    time.Duration
	sensitivity []uint32
}

func (c effectiveConfig) clone() effectiveConfig {
	return effectiveConfig{interval: c.interval, sensitivity: append([]uint32(nil), c.sensitivity...)}
}

func stoppedConfig(fieldCount int) effectiveConfig {
	return effectiveConfig{sensitivity: make([]uint32, fieldCount)}
}

// arbitrate computes the single configuration satisfying every request. The fastest nonzero
// interval wins. Per field, the tightest (smallest) sensitivity among streaming sessions wins;
// a streaming session that set no sensitivity for a field asks for 0 there. With no streaming
// session the result is stopped with every sensitivity 0.
func arbitrate(requests []request, fieldCount int) effectiveConfig {
	out := stoppedConfig(fieldCount)
	streaming := lo.Filter(requests, func(r request, _ int) bool { return r.streaming() })
	if len(streaming) == 0 {
		return out
	}
	out.interval = lo.Min(lo.Map(streaming, func(r request, _ int) time.Duration { return r.interval }))
	for i := range out.sensitivity {
		out.sensitivity[i] = lo.Min(lo.Map(streaming, func(r request, _ int) uint32 { return r.fieldSensitivity(i) }))
	}
	return out
}
