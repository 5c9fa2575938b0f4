package training

// ring keeps the most recent job embeddings for cross-batch negatives.
type ring struct {
	buf  []negative
	next int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]negative, max(size, 0))}
}

func (r *ring) push(n negative) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = n
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the stored negatives, oldest first.
func (r *ring) items() []negative {
	if !r.full {
		return append([]negative(nil), r.buf[:r.next]...)
	}
	out := make([]negative, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
