// Package geo provides the rectangle/point geometry primitives and the
// fixed-point bit codec that the Z-code builder and the GESS reference-point
// test are built on, per SPEC_FULL.md C13.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package geo

import (
	"fmt"
	"math"

	"github.com/NVIDIA/xsweep/cmn"
)

// Point is a coordinate in d-dimensional space.
type Point []float64

// Rectangle is an axis-aligned hyper-rectangle: llCorner[i] <= urCorner[i]
// for all i, per spec.md §3.
type Rectangle struct {
	LL Point
	UR Point
}

// NewRectangle validates the corner invariant before returning a Rectangle.
func NewRectangle(ll, ur Point) (Rectangle, error) {
	if len(ll) != len(ur) {
		return Rectangle{}, cmn.NewInvalidParameterError("geo.NewRectangle", "corner dimension mismatch")
	}
	for i := range ll {
		if ll[i] > ur[i] {
			return Rectangle{}, cmn.NewInvalidParameterError("geo.NewRectangle",
				fmt.Sprintf("llCorner[%d]=%v > urCorner[%d]=%v", i, ll[i], i, ur[i]))
		}
	}
	return Rectangle{LL: append(Point{}, ll...), UR: append(Point{}, ur...)}, nil
}

// NewPointRectangle builds a degenerate (zero-area) rectangle at p.
func NewPointRectangle(p Point) Rectangle {
	ll := append(Point{}, p...)
	ur := append(Point{}, p...)
	return Rectangle{LL: ll, UR: ur}
}

func (r Rectangle) Dimensions() int { return len(r.LL) }

// Union returns the minimum bounding rectangle (MBR) containing both r and
// other.
func (r Rectangle) Union(other Rectangle) Rectangle {
	d := r.Dimensions()
	ll := make(Point, d)
	ur := make(Point, d)
	for i := 0; i < d; i++ {
		ll[i] = math.Min(r.LL[i], other.LL[i])
		ur[i] = math.Max(r.UR[i], other.UR[i])
	}
	return Rectangle{LL: ll, UR: ur}
}

// Overlap returns the coordinate-wise intersection of r and other, and
// whether it is non-empty.
func (r Rectangle) Overlap(other Rectangle) (Rectangle, bool) {
	d := r.Dimensions()
	ll := make(Point, d)
	ur := make(Point, d)
	for i := 0; i < d; i++ {
		ll[i] = math.Max(r.LL[i], other.LL[i])
		ur[i] = math.Min(r.UR[i], other.UR[i])
		if ll[i] > ur[i] {
			return Rectangle{}, false
		}
	}
	return Rectangle{LL: ll, UR: ur}, true
}

// Overlaps is the boolean-only form of Overlap, convenient as a join
// predicate.
func (r Rectangle) Overlaps(other Rectangle) bool {
	_, ok := r.Overlap(other)
	return ok
}

// Area is the product of side lengths.
func (r Rectangle) Area() float64 {
	a := 1.0
	for i := range r.LL {
		a *= r.UR[i] - r.LL[i]
	}
	return a
}

// Margin is the sum of side lengths (a cheap, additive alternative to Area
// used by several R-tree-family split heuristics; included here because
// spec.md §3 names it as a required rectangle operation).
func (r Rectangle) Margin() float64 {
	m := 0.0
	for i := range r.LL {
		m += r.UR[i] - r.LL[i]
	}
	return m
}

// Contains reports whether other lies entirely within r.
func (r Rectangle) Contains(other Rectangle) bool {
	for i := range r.LL {
		if other.LL[i] < r.LL[i] || other.UR[i] > r.UR[i] {
			return false
		}
	}
	return true
}

// Centroid returns the rectangle's geometric center (SPEC_FULL.md §3
// "supplemented features"). No package in this module calls it; the GESS
// reference point is computed in gess itself.
func (r Rectangle) Centroid() Point {
	c := make(Point, r.Dimensions())
	for i := range r.LL {
		c[i] = (r.LL[i] + r.UR[i]) / 2
	}
	return c
}

func (r Rectangle) String() string {
	return fmt.Sprintf("[%v, %v]", r.LL, r.UR)
}

// PDistance returns the L^p norm of (x - y) for p >= 1; p < 1 is invalid per
// spec.md §4.11.
func PDistance(x, y []float64, p float64) (float64, error) {
	if p < 1 {
		return 0, cmn.NewInvalidParameterError("geo.PDistance", "p must be >= 1")
	}
	if len(x) != len(y) {
		return 0, cmn.NewInvalidParameterError("geo.PDistance", "dimension mismatch")
	}
	if math.IsInf(p, 1) {
		m := 0.0
		for i := range x {
			d := math.Abs(x[i] - y[i])
			if d > m {
				m = d
			}
		}
		return m, nil
	}
	sum := 0.0
	for i := range x {
		sum += math.Pow(math.Abs(x[i]-y[i]), p)
	}
	return math.Pow(sum, 1/p), nil
}
