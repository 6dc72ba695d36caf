package phy3d

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Channel selects a group of chip readings.
type Channel int

// Channels used by this driver.
const (
	ChannelAccelXYZ Channel = iota
	ChannelGyroXYZ
)

func (c Channel) String() string {
	switch c {
	case ChannelAccelXYZ:
		return "accel_xyz"
	case ChannelGyroXYZ:
		return "gyro_xyz"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Attribute is a configurable chip property.
type Attribute int

// Attributes used by this driver.
const (
	AttrSamplingFrequency Attribute = iota
	AttrSlopeThreshold
	AttrSlopeDuration
)

// TriggerType is the kind of chip interrupt.
type TriggerType int

// Trigger types used by this driver.
const (
	// TriggerDataReady fires whenever a new sample is available at the sampling frequency.
	TriggerDataReady TriggerType = iota
	// TriggerDelta fires when a reading moves past the slope threshold for the slope duration.
	TriggerDelta
)

// A Trigger identifies one chip interrupt source.
type Trigger struct {
	Type    TriggerType
	Channel Channel
}

// A Value is a fixed point chip value: Val1 is the integer part and Val2 the fractional part in
// millionths, both carrying the sign.
type Value struct {
	Val1 int64
	Val2 int64
}

// Float returns the value as a float.
func (v Value) Float() float64 {
	return float64(v.Val1) + float64(v.Val2)/1e6
}

// Micro returns the value in millionths.
func (v Value) Micro() int64 {
	return v.Val1*1e6 + v.Val2
}

// ValueFromFloat converts a float to a Value, rounding to the nearest millionth.
func ValueFromFloat(f float64) Value {
	micro := int64(math.Round(f * 1e6))
	return Value{Val1: micro / 1e6, Val2: micro % 1e6}
}

// A Device is a 3-axis motion chip. Readings are in SI units: m/s^2 for acceleration and rad/s
// for angular rate.
type Device interface {
	Name() string
	// SampleFetch latches a new sample from the chip.
	SampleFetch(ctx context.Context) error
	// Channel reads the latched sample.
	Channel(ctx context.Context, ch Channel) (r3.Vector, error)
	SetAttribute(ctx context.Context, ch Channel, attr Attribute, val Value) error
	Attribute(ctx context.Context, ch Channel, attr Attribute) (Value, error)
	// SetTrigger installs handler for trig. A nil handler disables the trigger.
	SetTrigger(ctx context.Context, trig Trigger, handler func()) error
}
