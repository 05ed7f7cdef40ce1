package queue

import "github.com/NVIDIA/xsweep/cmn"

// Admit is an admission predicate: given the queue's current occupancy
// measure (count or bytes, caller's choice) and the incoming element,
// report whether it may be enqueued. Supplemented generalization of
// spec.md §4.6's count-only BoundedQueue to either a count-based or
// byte-size-based capacity function, per SPEC_FULL.md §3.
type Admit[T any] func(occupancy func() int64, v T) bool

// OverflowHandler is invoked when Admit rejects an element. Returning nil
// means the rejection was handled (e.g. by blocking, spilling, or logging)
// and Enqueue returns success; returning an error propagates it.
type OverflowHandler[T any] func(v T) error

// Bounded decorates an underlying Queue with an admission predicate and a
// corresponding overflow handler. By default, rejected elements surface a
// capacity-exceeded error (spec.md §7).
type Bounded[T any] struct {
	inner     Queue[T]
	admit     Admit[T]
	occupancy func() int64
	overflow  OverflowHandler[T]
}

// NewBounded wraps inner with admit; occupancy reports the measure admit
// checks against (e.g. func() int64 { return int64(inner.Size()) }).
// overflow defaults to surfacing a capacity-exceeded error when nil.
func NewBounded[T any](inner Queue[T], admit Admit[T], occupancy func() int64, overflow OverflowHandler[T]) *Bounded[T] {
	if overflow == nil {
		overflow = func(T) error {
			return cmn.NewCapacityExceededError("queue.Bounded.Enqueue", "admission predicate rejected element")
		}
	}
	return &Bounded[T]{inner: inner, admit: admit, occupancy: occupancy, overflow: overflow}
}

func (b *Bounded[T]) Open() error  { return b.inner.Open() }
func (b *Bounded[T]) Close() error { return b.inner.Close() }

func (b *Bounded[T]) Enqueue(v T) error {
	if !b.admit(b.occupancy, v) {
		return b.overflow(v)
	}
	return b.inner.Enqueue(v)
}

func (b *Bounded[T]) Dequeue() (T, error) { return b.inner.Dequeue() }
func (b *Bounded[T]) Peek() (T, error)    { return b.inner.Peek() }
func (b *Bounded[T]) IsEmpty() bool       { return b.inner.IsEmpty() }
func (b *Bounded[T]) Size() int           { return b.inner.Size() }

// CountLimit is a ready-made Admit that caps on element count.
func CountLimit[T any](max int64) Admit[T] {
	return func(occupancy func() int64, _ T) bool { return occupancy() < max }
}

var _ Queue[int] = (*Bounded[int])(nil)
