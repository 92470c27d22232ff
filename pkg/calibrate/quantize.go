package calibrate

// Quantum is the rounding unit: a quarter turn at 4096 counts per revolution.
const Quantum = 1024

// Quantize rounds angle to the nearest multiple of Quantum. The magnitude is
// rounded and the sign preserved, so half-quantum ties go away from zero.
func Quantize(angle int) int {
	if angle < 0 {
		return -quantizeMagnitude(-angle)
	}
	return quantizeMagnitude(angle)
}

func quantizeMagnitude(m int) int {
	k := m / Quantum
	if m%Quantum >= Quantum/2 {
		k++
	}
	return k * Quantum
}

// QuantizeAll applies Quantize to every joint.
func QuantizeAll(pos Positions) Positions {
	var q Positions
	for i, p := range pos {
		q[i] = Quantize(p)
	}
	return q
}
