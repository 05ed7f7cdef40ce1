// Package sweep implements the generic two-input sort-merge join with
// pluggable sweep-area reorganization of SPEC_FULL.md C10. Both inputs
// must already be sorted by a shared comparator; this package owns only
// the driver loop, per spec.md §4.8 - concrete sweep areas (orenstein's
// Stack) provide the reorganize/query policy. Grounded on the two-input
// synchronized-advance shape the teacher uses for its mirror/resilvering
// walk (compare-then-advance-the-smaller-side over two sorted streams),
// generalized here into reusable generic join machinery since no pack
// library offers sort-merge join drivers. The driver itself is exposed as
// a lazy cursor, in the style of extsort's mergeCursor (C7): one step of
// the sort-merge advances the inputs and buffers whatever tuples that step
// produced, rather than materializing the whole join result up front -
// spec.md §1/§4.1 frame this entire system around out-of-core, pull-based
// iteration, and the join's output is exactly the stream most likely to be
// large.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sweep

import (
	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
)

// Area is the sweep-area capability of spec.md §4.8: insert elements of
// its own side, reorganize (expire stale entries) whenever the other side
// advances, and query for matches against the other side's current probe.
type Area[T any] interface {
	Insert(x T)
	Reorganize(currentStatus T)
	Query(probe T) []T
}

// Tuple is one emitted join result: an element from the left side paired
// with a matching element from the right side.
type Tuple[L, R any] struct {
	Left  L
	Right R
}

// Config parameterizes a SortMergeJoin: a comparator shared by both sides
// (lifted to compare a left and a right element) and the sweep areas each
// side owns.
type Config[L, R any] struct {
	// Compare reports how l and r order against each other: <0 if l
	// precedes r, >0 if it follows, 0 if tied (ties advance the left side
	// first, per spec.md §4.8).
	Compare   func(l L, r R) int
	LeftArea  Area[L]
	RightArea Area[R]
	// Match is an additional predicate applied to every area-returned
	// candidate pair (e.g. the Orenstein data predicate).
	Match func(l L, r R) bool
}

// SortMergeJoin drives the two-input merge of spec.md §4.8 lazily: the
// returned cursor peeks both sides, advances the smaller (ties go to the
// left), inserts the advancing element into its own sweep area, queries
// the *other* side's area for matches against the new element, and only
// then reorganizes that other area with the new element as currentStatus -
// querying before reorganizing so an entry about to be evicted still gets
// one last chance to match the probe that is evicting it. On end-of-stream
// on one side, the remaining side is drained through the same
// insert/query/reorganize steps against the already-exhausted side's area,
// since that area may still hold live entries the drained elements can
// match.
func SortMergeJoin[L, R any](left cursor.Cursor[L], right cursor.Cursor[R], cfg Config[L, R]) (cursor.Cursor[Tuple[L, R]], error) {
	const op = "sweep.SortMergeJoin"
	if cfg.Compare == nil || cfg.LeftArea == nil || cfg.RightArea == nil || cfg.Match == nil {
		return nil, cmn.NewJoinPreconditionError(op, "Compare, LeftArea, RightArea and Match are required")
	}
	return &joinCursor[L, R]{left: left, right: right, cfg: cfg}, nil
}

const (
	phaseMerge = iota
	phaseDrainLeft
	phaseDrainRight
	phaseDone
)

// joinCursor is the lazy driver behind SortMergeJoin: each fetch advances
// the merge by exactly as much input as is needed to produce the next
// tuple (or to discover there are none left), buffering same-step tuples
// in pending when a single advance yields more than one match.
type joinCursor[L, R any] struct {
	cursor.Base[Tuple[L, R]]
	left    cursor.Cursor[L]
	right   cursor.Cursor[R]
	cfg     Config[L, R]
	pending []Tuple[L, R]
	phase   int
}

func (j *joinCursor[L, R]) Open() error {
	const op = "sweep.joinCursor.Open"
	if err := j.OpenBase(); err != nil {
		return err
	}
	if err := j.left.Open(); err != nil {
		return cmn.NewIOError(op, "opening left cursor", err)
	}
	if err := j.right.Open(); err != nil {
		_ = j.left.Close()
		return cmn.NewIOError(op, "opening right cursor", err)
	}
	return nil
}

func (j *joinCursor[L, R]) Close() error {
	const op = "sweep.joinCursor.Close"
	j.CloseBase()
	if err := j.left.Close(); err != nil {
		return cmn.NewIOError(op, "closing left cursor", err)
	}
	if err := j.right.Close(); err != nil {
		return cmn.NewIOError(op, "closing right cursor", err)
	}
	return nil
}

// step advances the merge by one element, appending any tuples that
// element's probe yields to j.pending.
func (j *joinCursor[L, R]) step() error {
	const op = "sweep.joinCursor.step"
	switch j.phase {
	case phaseMerge:
		if !j.left.HasNext() || !j.right.HasNext() {
			switch {
			case j.left.HasNext():
				j.phase = phaseDrainLeft
			case j.right.HasNext():
				j.phase = phaseDrainRight
			default:
				j.phase = phaseDone
			}
			return nil
		}
		lv, err := j.left.Peek()
		if err != nil {
			return cmn.NewIOError(op, "peeking left", err)
		}
		rv, err := j.right.Peek()
		if err != nil {
			return cmn.NewIOError(op, "peeking right", err)
		}
		if cfg := j.cfg; cfg.Compare(lv, rv) <= 0 {
			if _, err := j.left.Next(); err != nil {
				return cmn.NewIOError(op, "advancing left", err)
			}
			cfg.LeftArea.Insert(lv)
			for _, cand := range cfg.RightArea.Query(lv) {
				if cfg.Match(lv, cand) {
					j.pending = append(j.pending, Tuple[L, R]{Left: lv, Right: cand})
				}
			}
			cfg.RightArea.Reorganize(lv)
		} else {
			if _, err := j.right.Next(); err != nil {
				return cmn.NewIOError(op, "advancing right", err)
			}
			cfg.RightArea.Insert(rv)
			for _, cand := range cfg.LeftArea.Query(rv) {
				if cfg.Match(cand, rv) {
					j.pending = append(j.pending, Tuple[L, R]{Left: cand, Right: rv})
				}
			}
			cfg.LeftArea.Reorganize(rv)
		}
		return nil

	case phaseDrainLeft:
		if !j.left.HasNext() {
			j.phase = phaseDone
			return nil
		}
		lv, err := j.left.Next()
		if err != nil {
			return cmn.NewIOError(op, "draining left", err)
		}
		cfg := j.cfg
		cfg.LeftArea.Insert(lv)
		for _, cand := range cfg.RightArea.Query(lv) {
			if cfg.Match(lv, cand) {
				j.pending = append(j.pending, Tuple[L, R]{Left: lv, Right: cand})
			}
		}
		cfg.RightArea.Reorganize(lv)
		return nil

	case phaseDrainRight:
		if !j.right.HasNext() {
			j.phase = phaseDone
			return nil
		}
		rv, err := j.right.Next()
		if err != nil {
			return cmn.NewIOError(op, "draining right", err)
		}
		cfg := j.cfg
		cfg.RightArea.Insert(rv)
		for _, cand := range cfg.LeftArea.Query(rv) {
			if cfg.Match(cand, rv) {
				j.pending = append(j.pending, Tuple[L, R]{Left: cand, Right: rv})
			}
		}
		cfg.LeftArea.Reorganize(rv)
		return nil
	}
	return nil
}

func (j *joinCursor[L, R]) fetch() (Tuple[L, R], bool, error) {
	var zero Tuple[L, R]
	for {
		if len(j.pending) > 0 {
			v := j.pending[0]
			j.pending = j.pending[1:]
			return v, true, nil
		}
		if j.phase == phaseDone {
			return zero, false, nil
		}
		if err := j.step(); err != nil {
			return zero, false, err
		}
	}
}

func (j *joinCursor[L, R]) HasNext() bool              { return j.HasNextFrom(j.fetch) }
func (j *joinCursor[L, R]) Next() (Tuple[L, R], error)  { return j.NextFrom(j.fetch) }
func (j *joinCursor[L, R]) Peek() (Tuple[L, R], error)  { return j.PeekFrom(j.fetch) }
func (j *joinCursor[L, R]) SupportsReset() bool         { return false }
func (j *joinCursor[L, R]) Reset() error                { return cursor.Unsupported("sweep.joinCursor.Reset") }
func (j *joinCursor[L, R]) SupportsRemove() bool        { return false }
func (j *joinCursor[L, R]) Remove() error               { return cursor.Unsupported("sweep.joinCursor.Remove") }
func (j *joinCursor[L, R]) SupportsUpdate() bool        { return false }
func (j *joinCursor[L, R]) Update(Tuple[L, R]) error    { return cursor.Unsupported("sweep.joinCursor.Update") }

var _ cursor.Cursor[Tuple[int, int]] = (*joinCursor[int, int])(nil)
