// Package orenstein implements the Z-code prefix space-filling-curve join
// of SPEC_FULL.md C11: a sweep.SortMergeJoin specialized with LIFO
// (stack-like) sweep areas over zcode.Payload, reorganized by the prefix
// trick described in spec.md §4.9. Grounded on sweep.SortMergeJoin (C10)
// plus zcode.Code's Compare/IsPrefixOf (C8).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package orenstein

import (
	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/sweep"
	"github.com/NVIDIA/xsweep/zcode"
)

// Stack is a LIFO sweep area over zcode.Payload[T], implementing the
// Z-code prefix reorganization rule of spec.md §4.9: when the other side's
// probe has Z-code q, pop every entry t whose Z-code satisfies
// `q.Precision() < t.Precision() OR Compare(q, t) != 0` - equivalently,
// keep only entries whose Z-code is a prefix of q.
type Stack[T any] struct {
	entries []zcode.Payload[T]
}

func NewStack[T any]() *Stack[T] { return &Stack[T]{} }

func (s *Stack[T]) Insert(x zcode.Payload[T]) {
	s.entries = append(s.entries, x)
}

func (s *Stack[T]) Reorganize(currentStatus zcode.Payload[T]) {
	q := currentStatus.ZCode
	kept := s.entries[:0]
	for _, t := range s.entries {
		if t.ZCode.IsPrefixOf(q) {
			kept = append(kept, t)
		}
	}
	s.entries = kept
}

func (s *Stack[T]) Query(probe zcode.Payload[T]) []zcode.Payload[T] {
	out := make([]zcode.Payload[T], 0, len(s.entries))
	for _, t := range s.entries {
		if t.ZCode.PrefixRelated(probe.ZCode) {
			out = append(out, t)
		}
	}
	return out
}

var _ sweep.Area[zcode.Payload[int]] = (*Stack[int])(nil)

// DataPredicate is the user-supplied predicate applied to the two payloads'
// Data (e.g. "rectangles overlap", "distance within epsilon").
type DataPredicate[L, R any] func(l L, r R) bool

// PayloadPredicate is the full form of a match predicate: it sees both
// payloads' Z-code metadata (precision, IsReplicate) alongside their Data,
// which callers like gess need for the reference-point predicate of
// spec.md §4.10.
type PayloadPredicate[L, R any] func(l zcode.Payload[L], r zcode.Payload[R]) bool

// JoinPayloads runs the Orenstein join (spec.md §4.9) over two cursors of
// Z-code payloads sorted lexicographically by Z-code, ANDing match onto the
// prefix-relation join predicate.
func JoinPayloads[L, R any](left cursor.Cursor[zcode.Payload[L]], right cursor.Cursor[zcode.Payload[R]], match PayloadPredicate[L, R]) (cursor.Cursor[sweep.Tuple[zcode.Payload[L], zcode.Payload[R]]], error) {
	const op = "orenstein.JoinPayloads"
	if match == nil {
		return nil, cmn.NewJoinPreconditionError(op, "match predicate is required")
	}
	leftArea := NewStack[L]()
	rightArea := NewStack[R]()

	cfg := sweep.Config[zcode.Payload[L], zcode.Payload[R]]{
		Compare: func(l zcode.Payload[L], r zcode.Payload[R]) int {
			return l.ZCode.Compare(r.ZCode)
		},
		LeftArea:  leftArea,
		RightArea: rightArea,
		Match: func(l zcode.Payload[L], r zcode.Payload[R]) bool {
			if !l.ZCode.PrefixRelated(r.ZCode) {
				return false
			}
			return match(l, r)
		},
	}
	return sweep.SortMergeJoin(left, right, cfg)
}

// Join is JoinPayloads for the common case where the match predicate only
// needs each side's Data, not its Z-code metadata.
func Join[L, R any](left cursor.Cursor[zcode.Payload[L]], right cursor.Cursor[zcode.Payload[R]], matchData DataPredicate[L, R]) (cursor.Cursor[sweep.Tuple[zcode.Payload[L], zcode.Payload[R]]], error) {
	const op = "orenstein.Join"
	if matchData == nil {
		return nil, cmn.NewJoinPreconditionError(op, "matchData predicate is required")
	}
	return JoinPayloads(left, right, func(l zcode.Payload[L], r zcode.Payload[R]) bool {
		return matchData(l.Data, r.Data)
	})
}
