// Package calibrate implements the two-pose homing procedure that maps raw
// servo encoder positions of a 6-joint arm onto a known logical frame.
package calibrate

import "math"

// Decode converts an unsigned encoder reading into a signed angle.
// Readings at or above MaxInt32 count down from the wrap point, so
// MaxUint32 decodes to 0.
func Decode(raw uint32) int {
	if raw < math.MaxInt32 {
		return int(raw)
	}
	return int(int64(raw) - math.MaxUint32)
}

// Encode is the inverse of Decode for angles in [MinInt32, MaxInt32-1].
func Encode(angle int) uint32 {
	if angle >= 0 {
		return uint32(angle)
	}
	return uint32(math.MaxUint32 + int64(angle))
}

// DecodeAll decodes a full group reading.
func DecodeAll(raw Raw) Positions {
	var pos Positions
	for i, r := range raw {
		pos[i] = Decode(r)
	}
	return pos
}
