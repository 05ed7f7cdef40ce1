// Package falloc implements the free-block manager of SPEC_FULL.md C3: a
// length-bucketed deque of free block extents serving best-fit-by-length,
// FIFO-within-length allocation over a block-addressed address space.
// Grounded on the teacher's length-bucketed object-size-class allocators in
// memsys (MMSA's slab classes group buffers by size and serve the smallest
// class that fits) - rewritten here for block extents rather than byte
// buffers, since no pack library offers variable-length-run block
// allocation.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package falloc

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/NVIDIA/xsweep/cmn"
)

// Extent is a maximal run of free blocks: [Pointer, Pointer+Length).
type Extent struct {
	Pointer int64
	Length  int64
}

// Manager is the free-block manager of spec.md §4.3: getPointer/markEmpty
// plus persistence across a pair-stream terminated by a pointer == -1
// sentinel. Every method takes the Manager's own mutex, so calls from
// several goroutines are serialized; per spec.md §5 "Shared resources", the
// free-block manager is owned by exactly one list-storage instance.
type Manager struct {
	mu            sync.Mutex
	buckets       map[int64][]int64 // length -> FIFO deque of pointers
	maxLength     int64
	lastUsedBlock int64
}

// NewManager returns an empty manager with lastUsedBlock = 0, per spec.md
// §9 scenario S2.
func NewManager() *Manager {
	return &Manager{buckets: make(map[int64][]int64)}
}

// GetPointer returns a pointer p such that blocks [p, p+n) are now marked
// used, applying best-fit-by-length, FIFO-within-length allocation (§4.3).
// n is a block count, not a byte count (§9 naming note on the source's
// EmptyBlocksManager.getPointer).
func (m *Manager) GetPointer(n int64) (int64, error) {
	const op = "falloc.GetPointer"
	if n <= 0 {
		return 0, cmn.NewInvalidParameterError(op, "n must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for length := n; length <= m.maxLength; length++ {
		deque := m.buckets[length]
		if len(deque) == 0 {
			continue
		}
		p := deque[0]
		m.buckets[length] = deque[1:]
		if length > n {
			m.insertLocked(p+n, length-n)
		}
		return p, nil
	}

	p := m.lastUsedBlock + 1
	m.lastUsedBlock += n
	glog.V(4).Infof("falloc: extended pool to serve %d blocks at %d, lastUsedBlock=%d", n, p, m.lastUsedBlock)
	return p, nil
}

// MarkEmpty returns the extent [p, p+length) to the free pool, appended to
// the length-`length` bucket. No coalescing with adjacent extents is
// performed - a deliberate omission carried forward from the source (§9);
// tests must verify repeated fragment/reallocate cycles never corrupt the
// address space, not that extents get merged.
func (m *Manager) MarkEmpty(p, length int64) error {
	const op = "falloc.MarkEmpty"
	if length <= 0 {
		return cmn.NewInvalidParameterError(op, "length must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(p, length)
	return nil
}

func (m *Manager) insertLocked(p, length int64) {
	m.buckets[length] = append(m.buckets[length], p)
	if length > m.maxLength {
		m.maxLength = length
	}
}

// Persist writes every (pointer, length) extent still resident in the free
// pool as a pair of big-endian int64s, terminated by (pointer = -1, length
// arbitrary), per spec.md §4.3/§6.
func (m *Manager) Persist(w io.Writer) error {
	const op = "falloc.Persist"
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [16]byte
	for length, deque := range m.buckets {
		for _, p := range deque {
			binary.BigEndian.PutUint64(buf[0:8], uint64(p))
			binary.BigEndian.PutUint64(buf[8:16], uint64(length))
			if _, err := w.Write(buf[:]); err != nil {
				return cmn.NewIOError(op, "writing extent", err)
			}
		}
	}
	binary.BigEndian.PutUint64(buf[0:8], uint64(-1))
	binary.BigEndian.PutUint64(buf[8:16], 0)
	if _, err := w.Write(buf[:]); err != nil {
		return cmn.NewIOError(op, "writing sentinel", err)
	}
	return nil
}

// Load replays a pair-stream written by Persist into a fresh Manager. The
// caller is responsible for also restoring lastUsedBlock (persisted
// separately by the list-storage layer that owns this manager), since
// spec.md's free-extent file layout (§6) only covers the extent stream
// itself.
func Load(r io.Reader, lastUsedBlock int64) (*Manager, error) {
	const op = "falloc.Load"
	m := NewManager()
	m.lastUsedBlock = lastUsedBlock
	var buf [16]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				return nil, cmn.NewSerializationError(op, "unterminated extent stream", err)
			}
			return nil, cmn.NewIOError(op, "reading extent", err)
		}
		p := int64(binary.BigEndian.Uint64(buf[0:8]))
		if p == -1 {
			return m, nil
		}
		length := int64(binary.BigEndian.Uint64(buf[8:16]))
		m.insertLocked(p, length)
	}
}

// LastUsedBlock reports the current high-water mark of the block address
// space; callers persist this alongside the extent stream.
func (m *Manager) LastUsedBlock() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUsedBlock
}
