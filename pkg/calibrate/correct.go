package calibrate

// InvertPositions applies the resolved direction to each joint. Joints that
// are not inverted are negated, since the logical home direction is opposite
// to the encoder's positive direction.
func InvertPositions(pos Positions, inverted Flags) Positions {
	var out Positions
	for i, p := range pos {
		if inverted[i] {
			out[i] = p
		} else {
			out[i] = -p
		}
	}
	return out
}

// Corrections computes the homing offsets that make the arm read target in
// the pose it held when quantized was sampled. The homing offset register is
// additive in the actuator's own sign convention, which depends on the drive
// mode, hence the two branches.
func Corrections(quantized Positions, inverted Flags, target Positions) Positions {
	correction := InvertPositions(quantized, inverted)
	for i := range correction {
		if inverted[i] {
			correction[i] -= target[i]
		} else {
			correction[i] += target[i]
		}
	}
	return correction
}
