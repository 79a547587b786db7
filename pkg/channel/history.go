package channel

import "time"

// Point is one measurement taken on the cycle with the given elapsed time.
type Point struct {
	At    time.Duration
	Value float64
}

// History is a FIFO buffer of measurements, ordered oldest first, newest last.
// It never holds more than its capacity; the supervisor trims it by timestamp so
// that every tracked sequence drops the same cycles.
type History struct {
	points   []Point
	capacity int
}

// NewHistory creates a history with the given capacity (at least 1).
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		points:   make([]Point, 0, capacity+1),
		capacity: capacity,
	}
}

// Append adds a point. If the capacity is exceeded the oldest point is removed.
func (h *History) Append(at time.Duration, value float64) {
	h.points = append(h.points, Point{At: at, Value: value})
	if len(h.points) > h.capacity {
		h.evict(len(h.points) - h.capacity)
	}
}

// EvictThrough removes every point taken at or before at and returns how many were removed.
func (h *History) EvictThrough(at time.Duration) int {
	n := 0
	for n < len(h.points) && h.points[n].At <= at {
		n++
	}
	h.evict(n)
	return n
}

// evict drops the n oldest points, keeping the backing array.
func (h *History) evict(n int) {
	if n <= 0 {
		return
	}
	copy(h.points, h.points[n:])
	h.points = h.points[:len(h.points)-n]
}

// Len returns the number of points.
func (h *History) Len() int {
	return len(h.points)
}

// Capacity returns the maximum number of points.
func (h *History) Capacity() int {
	return h.capacity
}

// Last returns the newest point.
func (h *History) Last() (Point, bool) {
	if len(h.points) == 0 {
		return Point{}, false
	}
	return h.points[len(h.points)-1], true
}

// Points returns a copy of the points, oldest first.
func (h *History) Points() []Point {
	result := make([]Point, len(h.points))
	copy(result, h.points)
	return result
}

// Values returns a copy of the measured values, oldest first.
func (h *History) Values() []float64 {
	result := make([]float64, len(h.points))
	for i, p := range h.points {
		result[i] = p.Value
	}
	return result
}
