package stream

type ringBuffer struct {
	items []Summary
	size  int
	count int
	head  int
}

// newRingBuffer allocates a fixed-size circular buffer for finished streams.
func newRingBuffer(size int) *ringBuffer {
	if size < 0 {
		size = 0
	}

	return &ringBuffer{
		items: make([]Summary, size),
		size:  size,
	}
}

// append pushes a summary, evicting the oldest when capacity is reached.
func (r *ringBuffer) append(s Summary) {
	if r.size == 0 {
		return
	}

	if r.count < r.size {
		idx := (r.head + r.count) % r.size
		r.items[idx] = s
		r.count++
		return
	}

	r.items[r.head] = s
	r.head = (r.head + 1) % r.size
}

// snapshot returns summaries in completion order without mutating the buffer.
func (r *ringBuffer) snapshot() []Summary {
	if r.count == 0 {
		return nil
	}

	out := make([]Summary, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % r.size
		out[i] = r.items[idx]
	}
	return out
}
