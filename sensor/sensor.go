// Package sensor defines the static description of the sensors available to the sensing engine
// and the samples their drivers produce.
package sensor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"
)

// Type specifies the class of a sensor. Values follow the HID sensor usage table so they can be
// carried over from device descriptions unchanged.
type Type int32

// Known sensor types.
const (
	TypeAmbientLight    Type = 0x41
	TypeAccelerometer3D Type = 0x73
	TypeGyrometer3D     Type = 0x76
	TypeMotionDetector  Type = 0x77
	TypeCompass3D       Type = 0x83
	TypeCustom          Type = 0xE1
	TypeHingeAngle      Type = 0x20B
)

var typeNames = map[Type]string{
	TypeAmbientLight:    "ambient_light",
	TypeAccelerometer3D: "accelerometer_3d",
	TypeGyrometer3D:     "gyrometer_3d",
	TypeMotionDetector:  "motion_detector",
	TypeCompass3D:       "compass_3d",
	TypeCustom:          "custom",
	TypeHingeAngle:      "hinge_angle",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%#x)", int32(t))
}

// TypeFromString parses either a known type name (e.g. "accelerometer_3d") or a numeric usage id
// in decimal or 0x-prefixed hex.
func TypeFromString(s string) (Type, error) {
	s = strings.TrimSpace(s)
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown sensor type %q", s)
	}
	return Type(v), nil
}

// IndexAll is the sensitivity field selector meaning "every data field".
const IndexAll = -1

// A Descriptor is the immutable description of one sensor. Descriptors are built once at startup
// and shared by pointer for the lifetime of the process.
type Descriptor struct {
	Type         Type
	Name         string
	FriendlyName string

	// Model names the driver model that serves this sensor.
	Model string
	// PhysicalRef is the external reference of the underlying device, if any.
	PhysicalRef string
	// MinInterval is the fastest sampling interval the sensor supports.
	MinInterval time.Duration
	// FieldCount is the number of data fields a sensitivity can be applied to. Zero means the
	// sensor does not support sensitivity.
	FieldCount int
	// ReportOnChange sensors only report samples that moved by at least the requested
	// sensitivity.
	ReportOnChange bool
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Name, d.FriendlyName, d.Type)
}

// ValidIndex reports whether the field index is addressable on this sensor, including IndexAll.
func (d *Descriptor) ValidIndex(index int) bool {
	return index == IndexAll || (index >= 0 && index < d.FieldCount)
}

// A Sample is one reading produced by a driver. Readings are Q31 fixed point values scaled by
// 2^Shift.
type Sample struct {
	Timestamp time.Time
	Readings  []int32
	Shift     int8
}

// Float returns reading i converted from Q31 to a float.
func (s Sample) Float(i int) float64 {
	return Q31ToFloat(s.Readings[i], s.Shift)
}

// Vector returns the first three readings as a vector. It panics if fewer than three readings
// are present.
func (s Sample) Vector() r3.Vector {
	return r3.Vector{X: s.Float(0), Y: s.Float(1), Z: s.Float(2)}
}

// Clone returns a deep copy of the sample.
func (s Sample) Clone() Sample {
	readings := make([]int32, len(s.Readings))
	copy(readings, s.Readings)
	return Sample{Timestamp: s.Timestamp, Readings: readings, Shift: s.Shift}
}

// Q31ToFloat converts a Q31 value with the given shift to a float.
func Q31ToFloat(q int32, shift int8) float64 {
	v := float64(q) / (1 << 31)
	if shift >= 0 {
		return v * float64(int64(1)<<shift)
	}
	return v / float64(int64(1)<<-shift)
}

// FloatToQ31 converts a float to a Q31 value with the given shift, saturating at the Q31 range.
func FloatToQ31(v float64, shift int8) int32 {
	if shift >= 0 {
		v /= float64(int64(1) << shift)
	} else {
		v *= float64(int64(1) << -shift)
	}
	scaled := v * (1 << 31)
	switch {
	case scaled >= (1<<31)-1:
		return 1<<31 - 1
	case scaled <= -(1 << 31):
		return -1 << 31
	}
	return int32(scaled)
}
