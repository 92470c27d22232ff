package calibrate

// ResolveInversions compares the quantized positions observed in pose 2
// against the expected target. A joint mounted mirrored reads a different
// quarter turn than expected, so any mismatch marks it inverted.
func ResolveInversions(observed, target Positions) Flags {
	var inverted Flags
	for i := range observed {
		inverted[i] = observed[i] != target[i]
	}
	return inverted
}
