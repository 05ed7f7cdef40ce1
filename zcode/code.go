// Package zcode implements the Z-order (Morton) bit-string key used by the
// Orenstein and GESS joins: a variable-precision bit string built by
// interleaving a rectangle's dimension-wise fixed-point coordinates, per
// SPEC_FULL.md C8.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package zcode

import (
	"fmt"
	"strings"

	"github.com/NVIDIA/xsweep/geo"
)

// Code is a bit string, most-significant-bit first, left-justified in bits.
// Only the top Precision bits are meaningful; this implementation packs
// into a single uint64, which covers spec.md §4.11's "typical <= 64 bits"
// case (and the ≤ 63-(64/d) cap the replicator imposes in practice -
// SPEC_FULL.md C9).
type Code struct {
	bits      uint64
	precision int
}

// Zero is the empty (zero-precision) Z-code: a prefix of every code.
var Zero = Code{}

func New(bits uint64, precision int) Code {
	if precision < 64 {
		bits &^= (1 << (64 - precision)) - 1 // clear bits past precision
	}
	return Code{bits: bits, precision: precision}
}

func (c Code) Precision() int { return c.precision }
func (c Code) Bits() uint64   { return c.bits }

// Bit returns the i-th bit (0 = most significant), valid for i < Precision.
func (c Code) Bit(i int) int {
	return int((c.bits >> (63 - i)) & 1)
}

// Compare returns -1, 0 or +1 comparing the two codes lexicographically
// over the shorter of the two precisions, per spec.md §3: a proper prefix
// compares equal, matching the Orenstein join's prefix-relation predicate.
func (c Code) Compare(other Code) int {
	m := c.precision
	if other.precision < m {
		m = other.precision
	}
	if m == 0 {
		return 0
	}
	mask := uint64(0xFFFFFFFFFFFFFFFF) << (64 - m)
	a, b := c.bits&mask, other.bits&mask
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsPrefixOf reports whether c is a prefix of (or equal to) other: c's
// precision is no greater than other's, and they agree on c's bits.
func (c Code) IsPrefixOf(other Code) bool {
	return c.precision <= other.precision && c.Compare(other) == 0
}

// PrefixRelated reports whether one of c, other is a prefix of the other -
// the join predicate of the Orenstein join (spec.md §4.9).
func (c Code) PrefixRelated(other Code) bool {
	return c.IsPrefixOf(other) || other.IsPrefixOf(c)
}

// Truncate returns c restricted to its first n bits (n <= c.Precision()),
// the "enclosing Z-cell" operation of spec.md §4.7.
func (c Code) Truncate(n int) Code {
	if n >= c.precision {
		return c
	}
	return New(c.bits, n)
}

func (c Code) String() string {
	var b strings.Builder
	for i := 0; i < c.precision; i++ {
		b.WriteByte(byte('0' + c.Bit(i)))
	}
	return fmt.Sprintf("Z(%d:%s)", c.precision, b.String())
}

// Payload pairs application data with its Z-code and a flag marking it as a
// non-canonical replicate of the original input, per spec.md §3.
type Payload[T any] struct {
	Data        T
	ZCode       Code
	IsReplicate bool
}

// BuildFromRectangle interleaves the dimension-wise fixed-point coordinates
// of r's lower-left corner from the most significant bit downward until the
// bit budget maxBits is exhausted, per spec.md §6's "Z-code bit layout".
// Coordinates are expected in [0,1)^d; callers normalize their own domain
// before calling this (see replicate.Replicator.InputMapping).
func BuildFromRectangle(r geo.Rectangle, maxBits int) Code {
	d := r.Dimensions()
	if d == 0 || maxBits <= 0 {
		return Zero
	}
	fixed := make([]uint64, d)
	for i := 0; i < d; i++ {
		fixed[i] = geo.DoubleToNormalizedLongBits(r.LL[i])
	}
	var bits uint64
	n := 0
	for n < maxBits {
		dim := n % d
		level := n / d
		bit := (fixed[dim] >> (62 - level)) & 1
		bits |= bit << (63 - n)
		n++
	}
	return New(bits, n)
}

// BuildFromPoint is BuildFromRectangle for a degenerate (zero-area) input.
func BuildFromPoint(p geo.Point, maxBits int) Code {
	return BuildFromRectangle(geo.NewPointRectangle(p), maxBits)
}

// StraddlesSplit reports whether r straddles the bisecting plane of
// dimension dim at the given recursion level - the replicator's branch test
// (spec.md §4.7). level 0 splits at 0.5, level 1 splits the resulting half
// at its midpoint, and so on.
func StraddlesSplit(r geo.Rectangle, dim, level int) (straddles bool, lowerHalf bool) {
	lo := geo.DoubleToNormalizedLongBits(r.LL[dim])
	hi := geo.DoubleToNormalizedLongBits(r.UR[dim])
	shift := uint(62 - level)
	loBit := (lo >> shift) & 1
	hiBit := (hi >> shift) & 1
	if loBit == hiBit {
		return false, loBit == 0
	}
	return true, false
}
