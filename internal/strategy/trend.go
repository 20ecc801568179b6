package strategy

// TrendCounter is the signed run length of consecutive periods the fast
// average has stayed above (positive) or below (negative) the slow average.
type TrendCounter int

// Observe applies one fast/slow comparison. It reports started when the
// comparison began a new trend, in which case the counter is now +1 or -1.
// Equal averages leave the counter untouched.
func (c *TrendCounter) Observe(fast, slow float64) (started bool) {
	switch {
	case fast > slow:
		if *c <= 0 {
			*c = 0
			started = true
		}
		*c++
	case fast < slow:
		if *c >= 0 {
			*c = 0
			started = true
		}
		*c--
	}
	return started
}

// Direction returns the sign of the counter as a Direction.
func (c TrendCounter) Direction() Direction {
	switch {
	case c > 0:
		return Long
	case c < 0:
		return Short
	default:
		return None
	}
}
