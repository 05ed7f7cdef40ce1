package cursor

import "sync"

// Tee broadcasts one upstream cursor into n independently-advancing
// downstream cursors (SPEC_FULL.md §3 "supplemented features"). Each
// consumer pulls at its own pace; the slowest consumer determines how far
// ahead of the upstream the internal buffer grows. Closing one consumer
// does not affect the others; the upstream is closed once every consumer
// has closed.
func Tee[T any](src Cursor[T], n int) []Cursor[T] {
	h := &teeHub[T]{src: src, n: n, pos: make([]int, n)}
	h.buf = make([]T, 0, 16)
	outs := make([]Cursor[T], n)
	for i := 0; i < n; i++ {
		outs[i] = &teeConsumer[T]{hub: h, idx: i}
	}
	return outs
}

type teeHub[T any] struct {
	mu       sync.Mutex
	src      Cursor[T]
	n        int
	opened   int
	closedN  int
	buf      []T // buf[0] corresponds to absolute index base
	base     int
	pos      []int // per-consumer absolute read position
	srcOpen  bool
	srcErr   error
	srcDone  bool
}

// at returns buf element for absolute position pos, fetching from src as
// needed. ok=false once src is exhausted.
func (h *teeHub[T]) at(pos int) (T, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var zero T
	if !h.srcOpen {
		if err := h.src.Open(); err != nil {
			return zero, false, err
		}
		h.srcOpen = true
	}
	for pos-h.base >= len(h.buf) {
		if h.srcDone {
			return zero, false, h.srcErr
		}
		if !h.src.HasNext() {
			h.srcDone = true
			return zero, false, nil
		}
		v, err := h.src.Next()
		if err != nil {
			h.srcDone = true
			h.srcErr = err
			return zero, false, err
		}
		h.buf = append(h.buf, v)
	}
	return h.buf[pos-h.base], true, nil
}

// release lets the hub discard buffered elements all consumers have passed.
func (h *teeHub[T]) release(idx, pos int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos[idx] = pos
	minPos := h.pos[0]
	for _, p := range h.pos[1:] {
		if p < minPos {
			minPos = p
		}
	}
	if minPos > h.base {
		drop := minPos - h.base
		if drop > len(h.buf) {
			drop = len(h.buf)
		}
		h.buf = h.buf[drop:]
		h.base += drop
	}
}

func (h *teeHub[T]) consumerClosed() {
	h.mu.Lock()
	h.closedN++
	all := h.closedN == h.n
	h.mu.Unlock()
	if all && h.srcOpen {
		_ = h.src.Close()
	}
}

type teeConsumer[T any] struct {
	Base[T]
	hub *teeHub[T]
	idx int
	pos int
}

func (c *teeConsumer[T]) fetch() (T, bool, error) { return c.hub.at(c.pos) }

func (c *teeConsumer[T]) Open() error { return c.OpenBase() }
func (c *teeConsumer[T]) Close() error {
	c.CloseBase()
	c.hub.consumerClosed()
	return nil
}
func (c *teeConsumer[T]) HasNext() bool { return c.HasNextFrom(c.fetch) }
func (c *teeConsumer[T]) Next() (T, error) {
	v, err := c.NextFrom(c.fetch)
	if err == nil {
		c.pos++
		c.hub.release(c.idx, c.pos)
	}
	return v, err
}
func (c *teeConsumer[T]) Peek() (T, error)        { return c.PeekFrom(c.fetch) }
func (c *teeConsumer[T]) SupportsReset() bool     { return false }
func (c *teeConsumer[T]) Reset() error            { return Unsupported(c.op("Reset")) }
func (c *teeConsumer[T]) SupportsRemove() bool    { return false }
func (c *teeConsumer[T]) Remove() error           { return Unsupported(c.op("Remove")) }
func (c *teeConsumer[T]) SupportsUpdate() bool    { return false }
func (c *teeConsumer[T]) Update(T) error          { return Unsupported(c.op("Update")) }
