// Package replicate implements the GESS hypercube replicator of
// SPEC_FULL.md C9: a lazy quad/oct-tree walk that maps each input
// hypercube to one or more disjoint Z-cells, splitting only where the
// input straddles a cell boundary and splitting is allowed. Grounded on
// zcode.StraddlesSplit/BuildFromRectangle (C8) for the bit-level recursion
// and, for exposing the walk lazily, on the teacher's
// ObjectsListingXact.putResult/resultCh shape: a goroutine walks the
// partition tree and offers one payload at a time over an unbuffered
// channel, selecting against an abort channel so a consumer that stops
// pulling early doesn't leak the goroutine.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package replicate

import (
	"math"
	"sync"

	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/geo"
	"github.com/NVIDIA/xsweep/zcode"
)

// SplitAllowed reports whether a straddling hypercube may be replicated at
// the given recursion level; splitsAtLevel is the number of splits already
// performed at that level for this input, per spec.md §4.7.
type SplitAllowed func(level, splitsAtLevel int) bool

// MaxSplitsPerLevel caps the number of replicate-splits any single input
// may undergo at one recursion level.
func MaxSplitsPerLevel(k int) SplitAllowed {
	return func(_ int, splitsAtLevel int) bool { return splitsAtLevel < k }
}

// MaxSplitLevel caps the recursion depth at which splitting is allowed.
func MaxSplitLevel(msl int) SplitAllowed {
	return func(level int, _ int) bool { return level < msl }
}

// And combines predicates, all of which must allow the split.
func And(preds ...SplitAllowed) SplitAllowed {
	return func(level, splitsAtLevel int) bool {
		for _, p := range preds {
			if !p(level, splitsAtLevel) {
				return false
			}
		}
		return true
	}
}

// DefaultSplitAllowed is MaxSplitsPerLevel(k) AND MaxSplitLevel(msl), per
// spec.md §4.7 "Default splitAllowed".
func DefaultSplitAllowed(k, msl int) SplitAllowed {
	return And(MaxSplitsPerLevel(k), MaxSplitLevel(msl))
}

// InputMapping maps application data to the fixed-point hypercube the
// replicator walks, typically expanding a point by epsilon/2 so point
// inputs become hypercubes (spec.md §4.7, §6 "Input mapping function").
type InputMapping[T any] func(v T) (geo.Rectangle, error)

// Replicator walks the quad/oct-partition tree for each input T, producing
// a lazy finite sequence of zcode.Payload[T].
type Replicator[T any] struct {
	Dimensions   int
	MaxBits      int // 0 = use minBitIndex-derived default
	InputMapping InputMapping[T]
	SplitAllowed SplitAllowed
}

// minBitIndex caps recursion depth to preserve headroom in the Z-code's
// per-axis representation, per spec.md §4.7.
func minBitIndex(d int) int {
	if d <= 0 {
		return 0
	}
	return 63 - 64/d
}

// Walk returns a lazy cursor over v's replicates. The canonical (first)
// replicate has IsReplicate = false; subsequent replicates carry
// IsReplicate = true (spec.md §4.7). The partition-tree recursion runs in
// its own goroutine and blocks on each send until the cursor pulls it,
// mirroring the teacher's ObjectsListingXact.putResult: a select between
// the payload channel and an abort channel so a consumer that stops
// pulling early (Close before exhaustion) does not leak the walk
// goroutine.
func (r *Replicator[T]) Walk(v T) (cursor.Cursor[zcode.Payload[T]], error) {
	const op = "replicate.Replicator.Walk"
	if r.InputMapping == nil || r.SplitAllowed == nil || r.Dimensions <= 0 {
		return nil, cmn.NewInvalidParameterError(op, "Dimensions, InputMapping and SplitAllowed are required")
	}
	rect, err := r.InputMapping(v)
	if err != nil {
		return nil, cmn.NewIOError(op, "applying input mapping", err)
	}
	maxBits := r.MaxBits
	if maxBits <= 0 {
		maxBits = minBitIndex(r.Dimensions)
	}

	ch := make(chan zcode.Payload[T])
	abort := make(chan struct{})

	go func() {
		defer close(ch)
		first := true
		splits := make(map[int]int) // level -> splits performed for this input
		// put sends one payload, reporting whether the consumer aborted.
		put := func(p zcode.Payload[T]) (aborted bool) {
			select {
			case <-abort:
				return true
			case ch <- p:
				return false
			}
		}
		var walk func(rect geo.Rectangle, level int, bits uint64, precision int) (aborted bool)
		walk = func(rect geo.Rectangle, level int, bits uint64, precision int) bool {
			if precision >= maxBits {
				p := zcode.Payload[T]{Data: v, ZCode: zcode.New(bits, precision), IsReplicate: !first}
				first = false
				return put(p)
			}
			dim := level % r.Dimensions
			straddles, lowerHalf := zcode.StraddlesSplit(rect, dim, level/r.Dimensions)
			if !straddles {
				bit := uint64(0)
				if !lowerHalf {
					bit = 1
				}
				return walk(rect, level+1, bits|(bit<<(63-precision)), precision+1)
			}
			if !r.SplitAllowed(level, splits[level]) {
				p := zcode.Payload[T]{Data: v, ZCode: zcode.New(bits, precision), IsReplicate: !first}
				first = false
				return put(p)
			}
			splits[level]++
			lo, hi := bisect(rect, dim, level/r.Dimensions)
			if walk(lo, level+1, bits|(uint64(0)<<(63-precision)), precision+1) {
				return true
			}
			return walk(hi, level+1, bits|(uint64(1)<<(63-precision)), precision+1)
		}
		walk(rect, 0, 0, 0)
	}()

	return &walkCursor[T]{ch: ch, abort: abort}, nil
}

// bisect splits rect along dimension dim at the cell's bisecting plane for
// the given per-axis level, returning the lower and upper halves; the lower
// half ends just below the plane.
func bisect(rect geo.Rectangle, dim, level int) (geo.Rectangle, geo.Rectangle) {
	shift := uint(62 - level)
	plane := (geo.DoubleToNormalizedLongBits(rect.LL[dim])>>(shift+1))<<(shift+1) | uint64(1)<<shift
	mid := geo.NormalizedLongBitsToDouble(plane)
	lo, _ := geo.NewRectangle(append(geo.Point{}, rect.LL...), replaceDim(rect.UR, dim, math.Nextafter(mid, 0)))
	hi, _ := geo.NewRectangle(replaceDim(rect.LL, dim, mid), append(geo.Point{}, rect.UR...))
	return lo, hi
}

func replaceDim(p geo.Point, dim int, v float64) geo.Point {
	out := append(geo.Point{}, p...)
	out[dim] = v
	return out
}

// walkCursor adapts the channel fed by Walk's goroutine into a Cursor,
// closing abort at most once so an early Close unblocks a walk goroutine
// stuck offering its next payload.
type walkCursor[T any] struct {
	cursor.Base[zcode.Payload[T]]
	ch        <-chan zcode.Payload[T]
	abort     chan struct{}
	abortOnce sync.Once
}

func (c *walkCursor[T]) fetch() (zcode.Payload[T], bool, error) {
	v, ok := <-c.ch
	if !ok {
		var zero zcode.Payload[T]
		return zero, false, nil
	}
	return v, true, nil
}

func (c *walkCursor[T]) Open() error { return c.OpenBase() }
func (c *walkCursor[T]) Close() error {
	c.CloseBase()
	c.abortOnce.Do(func() { close(c.abort) })
	return nil
}
func (c *walkCursor[T]) HasNext() bool                   { return c.HasNextFrom(c.fetch) }
func (c *walkCursor[T]) Next() (zcode.Payload[T], error) { return c.NextFrom(c.fetch) }
func (c *walkCursor[T]) Peek() (zcode.Payload[T], error) { return c.PeekFrom(c.fetch) }
func (c *walkCursor[T]) SupportsReset() bool             { return false }
func (c *walkCursor[T]) Reset() error                    { return cursor.Unsupported("replicate.walkCursor.Reset") }
func (c *walkCursor[T]) SupportsRemove() bool            { return false }
func (c *walkCursor[T]) Remove() error                   { return cursor.Unsupported("replicate.walkCursor.Remove") }
func (c *walkCursor[T]) SupportsUpdate() bool            { return false }
func (c *walkCursor[T]) Update(zcode.Payload[T]) error {
	return cursor.Unsupported("replicate.walkCursor.Update")
}

var _ cursor.Cursor[zcode.Payload[int]] = (*walkCursor[int])(nil)
