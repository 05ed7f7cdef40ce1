package queue

import (
	"encoding/binary"
	"io"
	"testing"
)

type intCodec struct{}

func (intCodec) Encode(w io.Writer, v int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func (intCodec) Decode(r io.Reader) (int, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf[:])), nil
}

func TestMemoryFIFOOrder(t *testing.T) {
	q := NewMemory[int]()
	if err := q.Open(); err != nil {
		t.Fatal(err)
	}
	for _, v := range []int{1, 2, 3} {
		if err := q.Enqueue(v); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []int{1, 2, 3} {
		got, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %d want %d", got, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("expected empty queue")
	}
}

func TestFileQueueRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := Factory[int]{Dir: dir, Codec: intCodec{}}
	q, err := f.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Open(); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	for _, v := range []int{5, 6, 7} {
		if err := q.Enqueue(v); err != nil {
			t.Fatal(err)
		}
	}
	if q.Size() != 3 {
		t.Fatalf("size = %d want 3", q.Size())
	}

	peeked, err := q.Peek()
	if err != nil {
		t.Fatal(err)
	}
	if peeked != 5 {
		t.Fatalf("peek = %d want 5", peeked)
	}

	for _, want := range []int{5, 6, 7} {
		got, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %d want %d", got, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("expected empty queue after draining")
	}
}

func TestFileQueueCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := Factory[int]{Dir: dir, Codec: intCodec{}, Compress: true}
	q, err := f.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Open(); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	for i := 0; i < 50; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 50; i++ {
		got, err := q.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if got != i {
			t.Fatalf("got %d want %d", got, i)
		}
	}
}

func TestBoundedRejectsOverCapacity(t *testing.T) {
	inner := NewMemory[int]()
	if err := inner.Open(); err != nil {
		t.Fatal(err)
	}
	b := NewBounded[int](inner, CountLimit[int](2), func() int64 { return int64(inner.Size()) }, nil)

	if err := b.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	if err := b.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if err := b.Enqueue(3); err == nil {
		t.Fatal("expected capacity-exceeded error")
	}
}

func TestBoundedCustomOverflowHandler(t *testing.T) {
	inner := NewMemory[int]()
	if err := inner.Open(); err != nil {
		t.Fatal(err)
	}
	var overflowed []int
	b := NewBounded[int](inner, CountLimit[int](1), func() int64 { return int64(inner.Size()) }, func(v int) error {
		overflowed = append(overflowed, v)
		return nil
	})
	if err := b.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	if err := b.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if len(overflowed) != 1 || overflowed[0] != 2 {
		t.Fatalf("got %v", overflowed)
	}
}
