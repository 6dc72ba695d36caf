package sensing

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/sensing/sensor"
)

func TestArbitrateInterval(t *testing.T) {
	for _, tc := range []struct {
		name      string
		intervals []time.Duration
		expected  time.Duration
	}{
		{"no sessions", nil, 0},
		{"all stopped", []time.Duration{0, 0}, 0},
		{"fastest wins", []time.Duration{100 * time.Millisecond, 50 * time.Millisecond}, 50 * time.Millisecond},
		{"stopped ignored", []time.Duration{0, 100 * time.Millisecond}, 100 * time.Millisecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			requests := make([]request, 0, len(tc.intervals))
			for _, interval := range tc.intervals {
				requests = append(requests, request{interval: interval})
			}
			eff := arbitrate(requests, 3)
			test.That(t, eff.interval, test.ShouldEqual, tc.expected)
			test.That(t, eff.sensitivity, test.ShouldResemble, []uint32{0, 0, 0})
		})
	}
}

func TestArbitrateSensitivity(t *testing.T) {
	streaming := request{interval: 100 * time.Millisecond}

	a := streaming.withSensitivity(sensor.IndexAll, 10).withSensitivity(1, 3)
	b := streaming.withSensitivity(sensor.IndexAll, 20)
	test.That(t, arbitrate([]request{a, b}, 3).sensitivity, test.ShouldResemble, []uint32{10, 3, 10})

	// A streaming session with nothing set on a field asks for every sample there.
	c := streaming.withSensitivity(0, 5)
	test.That(t, arbitrate([]request{b, c}, 3).sensitivity, test.ShouldResemble, []uint32{5, 0, 0})

	// Stopped sessions do not take part.
	idle := request{}.withSensitivity(sensor.IndexAll, 1)
	test.That(t, arbitrate([]request{b, idle}, 3).sensitivity, test.ShouldResemble, []uint32{20, 20, 20})
	test.That(t, arbitrate([]request{idle}, 3), test.ShouldResemble, stoppedConfig(3))

	test.That(t, arbitrate([]request{a}, 0).sensitivity, test.ShouldBeEmpty)
}

func TestWithSensitivity(t *testing.T) {
	r := request{}.withSensitivity(0, 4).withSensitivity(2, 6)
	test.That(t, r.fieldSensitivities(3), test.ShouldResemble, []uint32{4, 0, 6})

	// Storing the wildcard replaces the concrete entries.
	all := r.withSensitivity(sensor.IndexAll, 9)
	test.That(t, all.fieldSensitivities(3), test.ShouldResemble, []uint32{9, 9, 9})
	test.That(t, all.withSensitivity(1, 2).fieldSensitivities(3), test.ShouldResemble, []uint32{9, 2, 9})

	// The receiver is never modified.
	test.That(t, r.fieldSensitivities(3), test.ShouldResemble, []uint32{4, 0, 6})
}
