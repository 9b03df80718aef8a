package mot

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// clamp restricts val to [min, max]
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
