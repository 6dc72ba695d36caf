package sensor

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestTypeFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Type
	}{
		{"accelerometer_3d", TypeAccelerometer3D},
		{"Gyrometer_3D", TypeGyrometer3D},
		{"0x73", TypeAccelerometer3D},
		{"118", TypeGyrometer3D},
		{" hinge_angle ", TypeHingeAngle},
	} {
		typ, err := TypeFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, typ, test.ShouldEqual, tc.expected)
	}

	_, err := TypeFromString("barometer")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, TypeCompass3D.String(), test.ShouldEqual, "compass_3d")
	test.That(t, Type(0x99).String(), test.ShouldEqual, "type(0x99)")
}

func TestValidIndex(t *testing.T) {
	desc := &Descriptor{Name: "accel-0", FieldCount: 3}
	test.That(t, desc.ValidIndex(IndexAll), test.ShouldBeTrue)
	test.That(t, desc.ValidIndex(0), test.ShouldBeTrue)
	test.That(t, desc.ValidIndex(2), test.ShouldBeTrue)
	test.That(t, desc.ValidIndex(3), test.ShouldBeFalse)
	test.That(t, desc.ValidIndex(-2), test.ShouldBeFalse)
}

func TestQ31(t *testing.T) {
	for _, shift := range []int8{0, 6, 15} {
		for _, v := range []float64{0, 0.5, -0.25, 0.999} {
			scaled := v
			if shift > 0 {
				scaled = v * float64(int64(1)<<shift)
			}
			q := FloatToQ31(scaled, shift)
			test.That(t, Q31ToFloat(q, shift), test.ShouldAlmostEqual, scaled, 1e-6*math.Max(1, math.Abs(scaled)))
		}
	}

	// Saturation.
	test.That(t, FloatToQ31(2, 0), test.ShouldEqual, int32(math.MaxInt32))
	test.That(t, FloatToQ31(-2, 0), test.ShouldEqual, int32(math.MinInt32))
}

func TestSampleVector(t *testing.T) {
	s := Sample{
		Timestamp: time.Unix(10, 0),
		Readings:  []int32{FloatToQ31(9.81, 6), FloatToQ31(-1, 6), 0},
		Shift:     6,
	}
	v := s.Vector()
	test.That(t, v.X, test.ShouldAlmostEqual, 9.81, 1e-6)
	test.That(t, v.Y, test.ShouldAlmostEqual, -1, 1e-6)
	test.That(t, v.Z, test.ShouldEqual, 0)

	clone := s.Clone()
	clone.Readings[0] = 0
	test.That(t, s.Readings[0], test.ShouldNotEqual, 0)
}
