package maths

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Percent returns 100*part/whole clamped to [0, 100]; zero when whole is not positive.
func Percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return Clamp(100*part/whole, 0, 100)
}

func MaxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
