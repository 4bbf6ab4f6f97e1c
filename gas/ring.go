package gas

// ring keeps the most recent samples up to a fixed capacity.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{buf: make([]float64, size)}
}

func (r *ring) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// average of the retained samples, 0 when empty.
func (r *ring) average() float64 {
	n := r.len()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(n)
}
