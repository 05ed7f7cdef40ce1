package gess

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/geo"
	"github.com/NVIDIA/xsweep/replicate"
	"github.com/NVIDIA/xsweep/sweep"
	"github.com/NVIDIA/xsweep/zcode"
)

func pointMapping(eps float64) replicate.InputMapping[geo.Point] {
	return func(p geo.Point) (geo.Rectangle, error) {
		ll := make(geo.Point, len(p))
		ur := make(geo.Point, len(p))
		for i, c := range p {
			ll[i] = c - eps/2
			ur[i] = c + eps/2
		}
		return geo.NewRectangle(ll, ur)
	}
}

func newReplicator(eps float64) *replicate.Replicator[geo.Point] {
	return &replicate.Replicator[geo.Point]{
		Dimensions:   1,
		MaxBits:      6,
		InputMapping: pointMapping(eps),
		SplitAllowed: replicate.DefaultSplitAllowed(1000, 1000),
	}
}

func pointOf(p geo.Point) geo.Point { return p }

func drain(c cursor.Cursor[sweep.Tuple[zcode.Payload[geo.Point], zcode.Payload[geo.Point]]]) []sweep.Tuple[zcode.Payload[geo.Point], zcode.Payload[geo.Point]] {
	Expect(c.Open()).To(Succeed())
	var out []sweep.Tuple[zcode.Payload[geo.Point], zcode.Payload[geo.Point]]
	for c.HasNext() {
		v, err := c.Next()
		Expect(err).NotTo(HaveOccurred())
		out = append(out, v)
	}
	Expect(c.Close()).To(Succeed())
	return out
}

var _ = Describe("Join", func() {
	// Pins spec.md §8 property 11 (via §4.10): two points within epsilon
	// of each other, close enough to straddle a cell boundary and
	// replicate, must still join exactly once - the reference-point
	// predicate eliminates every duplicate but the one whose cell owns
	// the reference point.
	It("produces exactly one match within epsilon", func() {
		const eps = 0.25
		left := cursor.FromSlice([]geo.Point{{0.49}})
		right := cursor.FromSlice([]geo.Point{{0.50}})

		c, err := Join[geo.Point, geo.Point](left, right, Config[geo.Point, geo.Point]{
			Left:       newReplicator(eps),
			Right:      newReplicator(eps),
			LeftPoint:  pointOf,
			RightPoint: pointOf,
			Eps:        eps,
			Match: func(l, r geo.Point) bool {
				d, err := geo.PDistance(l, r, 2)
				Expect(err).NotTo(HaveOccurred())
				return d <= eps
			},
		})
		Expect(err).NotTo(HaveOccurred())
		out := drain(c)
		Expect(out).To(HaveLen(1))
	})

	// The data predicate still suppresses pairs that are not actually
	// within epsilon even when they share a Z-cell.
	It("produces no match outside epsilon", func() {
		const eps = 0.1
		left := cursor.FromSlice([]geo.Point{{0.1}})
		right := cursor.FromSlice([]geo.Point{{0.9}})

		c, err := Join[geo.Point, geo.Point](left, right, Config[geo.Point, geo.Point]{
			Left:       newReplicator(eps),
			Right:      newReplicator(eps),
			LeftPoint:  pointOf,
			RightPoint: pointOf,
			Eps:        eps,
			Match: func(l, r geo.Point) bool {
				d, err := geo.PDistance(l, r, 2)
				Expect(err).NotTo(HaveOccurred())
				return d <= eps
			},
		})
		Expect(err).NotTo(HaveOccurred())
		out := drain(c)
		Expect(out).To(BeEmpty())
	})

	It("rejects an incomplete config", func() {
		left := cursor.FromSlice([]geo.Point{})
		right := cursor.FromSlice([]geo.Point{})
		_, err := Join[geo.Point, geo.Point](left, right, Config[geo.Point, geo.Point]{})
		Expect(err).To(HaveOccurred())
	})
})
