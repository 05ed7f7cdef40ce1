// Package gess implements the GESS join of SPEC_FULL.md C12: the
// replicator (C9) in front of each input to the Orenstein join (C11), with
// the reference-point duplicate-elimination predicate of spec.md §4.10
// ANDed onto the user's data predicate. Grounded on replicate.Replicator
// and orenstein.JoinPayloads, composed the way the teacher composes its
// own multi-stage pipelines (one component's cursor output feeding the
// next stage's input).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package gess

import (
	"sort"

	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/geo"
	"github.com/NVIDIA/xsweep/orenstein"
	"github.com/NVIDIA/xsweep/replicate"
	"github.com/NVIDIA/xsweep/sweep"
	"github.com/NVIDIA/xsweep/zcode"
)

// Config bundles the two sides' replicators with the geometry needed for
// the reference-point predicate and the user's data predicate.
type Config[L, R any] struct {
	Left  *replicate.Replicator[L]
	Right *replicate.Replicator[R]
	// LeftPoint/RightPoint extract the representative point used for
	// reference-point de-duplication (spec.md §4.10) from each side's data.
	LeftPoint  func(L) geo.Point
	RightPoint func(R) geo.Point
	// Eps is the same epsilon used to build each Replicator's InputMapping;
	// the reference point is r[i] = max(p1[i], p2[i]) - Eps/2.
	Eps   float64
	Match orenstein.DataPredicate[L, R]
	// AlwaysCheckReferencePoint forces the reference-point predicate to run
	// even when neither payload is a replicate, where it is otherwise
	// guaranteed to accept (spec.md §4.10) and is skipped for speed.
	AlwaysCheckReferencePoint bool
}

// Join runs the GESS join (spec.md §4.10): each input is replicated into
// Z-cells, the replicate streams are sorted by Z-code, and the result is
// fed through the Orenstein join with the reference-point predicate ANDed
// onto cfg.Match so that among all replicate-pairs sharing a Z-cell,
// exactly one survives.
func Join[L, R any](leftInput cursor.Cursor[L], rightInput cursor.Cursor[R], cfg Config[L, R]) (cursor.Cursor[sweep.Tuple[zcode.Payload[L], zcode.Payload[R]]], error) {
	const op = "gess.Join"
	if cfg.Left == nil || cfg.Right == nil || cfg.LeftPoint == nil || cfg.RightPoint == nil || cfg.Match == nil {
		return nil, cmn.NewJoinPreconditionError(op, "Left, Right, LeftPoint, RightPoint and Match are required")
	}

	leftPayloads, err := replicateAll(leftInput, cfg.Left)
	if err != nil {
		return nil, err
	}
	rightPayloads, err := replicateAll(rightInput, cfg.Right)
	if err != nil {
		return nil, err
	}

	sortByZCode(leftPayloads)
	sortByZCode(rightPayloads)

	match := func(l zcode.Payload[L], r zcode.Payload[R]) bool {
		if !cfg.Match(l.Data, r.Data) {
			return false
		}
		if !cfg.AlwaysCheckReferencePoint && !l.IsReplicate && !r.IsReplicate {
			return true
		}
		return referencePointOwnsCell(l, r, cfg)
	}

	return orenstein.JoinPayloads(cursor.FromSlice(leftPayloads), cursor.FromSlice(rightPayloads), match)
}

// referencePointOwnsCell implements spec.md §4.10's duplicate-elimination
// test. c is the common Z-cell shared by l and r (guaranteed by Orenstein's
// prefix invariant - it is whichever of the two codes has the smaller
// precision, the coarser, common ancestor cell).
func referencePointOwnsCell[L, R any](l zcode.Payload[L], r zcode.Payload[R], cfg Config[L, R]) bool {
	c := l.ZCode
	if r.ZCode.Precision() < c.Precision() {
		c = r.ZCode
	}
	p1 := cfg.LeftPoint(l.Data)
	p2 := cfg.RightPoint(r.Data)
	ref := referencePoint(p1, p2, cfg.Eps)
	refCode := zcode.BuildFromPoint(ref, c.Precision())
	return refCode.Compare(c) == 0
}

// referencePoint computes r[i] = max(p1[i], p2[i]) - eps/2 per dimension.
func referencePoint(p1, p2 geo.Point, eps float64) geo.Point {
	d := len(p1)
	if len(p2) < d {
		d = len(p2)
	}
	r := make(geo.Point, d)
	for i := 0; i < d; i++ {
		m := p1[i]
		if p2[i] > m {
			m = p2[i]
		}
		r[i] = m - eps/2
	}
	return r
}

// replicateAll drains input, replicating every element through repl and
// flattening the per-element replicate streams into a single slice.
func replicateAll[T any](input cursor.Cursor[T], repl *replicate.Replicator[T]) ([]zcode.Payload[T], error) {
	const op = "gess.replicateAll"
	if err := input.Open(); err != nil {
		return nil, cmn.NewIOError(op, "opening input cursor", err)
	}
	var out []zcode.Payload[T]
	for input.HasNext() {
		v, err := input.Next()
		if err != nil {
			_ = input.Close()
			return nil, cmn.NewIOError(op, "reading input", err)
		}
		rc, err := repl.Walk(v)
		if err != nil {
			_ = input.Close()
			return nil, err
		}
		if err := rc.Open(); err != nil {
			_ = input.Close()
			return nil, cmn.NewIOError(op, "opening replicate cursor", err)
		}
		for rc.HasNext() {
			p, err := rc.Next()
			if err != nil {
				_ = rc.Close()
				_ = input.Close()
				return nil, cmn.NewIOError(op, "reading replicate cursor", err)
			}
			out = append(out, p)
		}
		if err := rc.Close(); err != nil {
			_ = input.Close()
			return nil, cmn.NewIOError(op, "closing replicate cursor", err)
		}
	}
	if err := input.Close(); err != nil {
		return nil, cmn.NewIOError(op, "closing input cursor", err)
	}
	return out, nil
}

// sortByZCode sorts payloads lexicographically by Z-code, the ordering
// Orenstein's sweep areas require of both input streams (spec.md §4.9).
func sortByZCode[T any](payloads []zcode.Payload[T]) {
	sort.SliceStable(payloads, func(i, j int) bool {
		return payloads[i].ZCode.Compare(payloads[j].ZCode) < 0
	})
}
