package scope

// Downsample decimates src to at most maxPoints for display. The newest point is
// always kept so the trace ends at the latest reading.
// dst is reused when it has enough capacity; the result is returned.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	if maxPoints < 2 {
		maxPoints = 2
	}

	if len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]T, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)-1) / float64(maxPoints-1)
	for i := range maxPoints - 1 {
		dst = append(dst, src[int(float64(i)*step)])
	}
	return append(dst, src[len(src)-1])
}
