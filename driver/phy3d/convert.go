package phy3d

import (
	"math"

	"github.com/golang/geo/r3"
)

// Q31 scaling exponents of the reported samples. Accelerometer samples are in g, gyrometer
// samples in degrees per second.
const (
	AccelQ31Shift = 6
	GyroQ31Shift  = 15
)

const standardGravity = 9.80665

// custom holds the per sensor type conversions.
type custom struct {
	channel Channel
	shift   int8
	toQ31   func(v float64) int32
	fromQ31 func(q int32) float64
}

var (
	customAccel = &custom{
		channel: ChannelAccelXYZ,
		shift:   AccelQ31Shift,
		toQ31:   accelToQ31,
		fromQ31: accelFromQ31,
	}
	customGyro = &custom{
		channel: ChannelGyroXYZ,
		shift:   GyroQ31Shift,
		toQ31:   gyroToQ31,
		fromQ31: gyroFromQ31,
	}
)

func (c *custom) vectorToQ31(v r3.Vector) []int32 {
	return []int32{c.toQ31(v.X), c.toQ31(v.Y), c.toQ31(v.Z)}
}

// microToQ31 scales a value in millionths to Q31 with the given shift, saturating at the Q31
// range. The product is formed in float64 since micro*MaxInt32 overflows int64 for gyro rates.
func microToQ31(micro int64, shift int) int32 {
	scaled := int64(float64(micro)*math.MaxInt32/1e6) >> shift
	switch {
	case scaled > math.MaxInt32:
		return math.MaxInt32
	case scaled < math.MinInt32:
		return math.MinInt32
	}
	return int32(scaled)
}

func q31ToMicro(q int32, shift int) int64 {
	return int64(math.Round(float64(int64(q)<<shift) * 1e6 / math.MaxInt32))
}

// accelToQ31 converts m/s^2 to micro-g in Q31.
func accelToQ31(ms2 float64) int32 {
	microG := int64(math.Round(ms2 / standardGravity * 1e6))
	return microToQ31(microG, AccelQ31Shift)
}

// accelFromQ31 converts a Q31 value in g back to m/s^2.
func accelFromQ31(q int32) float64 {
	return float64(q31ToMicro(q, AccelQ31Shift)) / 1e6 * standardGravity
}

// gyroToQ31 converts rad/s to micro-degrees per second in Q31.
func gyroToQ31(rads float64) int32 {
	microDeg := int64(math.Round(rads * 180 / math.Pi * 1e6))
	return microToQ31(microDeg, GyroQ31Shift)
}

// gyroFromQ31 converts a Q31 value in degrees per second back to rad/s.
func gyroFromQ31(q int32) float64 {
	return float64(q31ToMicro(q, GyroQ31Shift)) / 1e6 * math.Pi / 180
}
