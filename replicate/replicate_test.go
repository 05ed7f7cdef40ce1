package replicate

import (
	"testing"

	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/geo"
	"github.com/NVIDIA/xsweep/zcode"
)

func pointMapping(eps float64) InputMapping[geo.Point] {
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

func TestWalkSingleCellWhenNoStraddle(t *testing.T) {
	r := &Replicator[geo.Point]{
		Dimensions:   1,
		MaxBits:      4,
		InputMapping: func(p geo.Point) (geo.Rectangle, error) { return geo.NewPointRectangle(p), nil },
		SplitAllowed: DefaultSplitAllowed(1000, 1000),
	}
	c, err := r.Walk(geo.Point{0.1})
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, c)
	if len(out) != 1 {
		t.Fatalf("expected exactly one cell for a degenerate point, got %d", len(out))
	}
	if out[0].IsReplicate {
		t.Fatal("first replicate must have IsReplicate = false")
	}
}

func TestWalkReplicatesWhenStraddling(t *testing.T) {
	r := &Replicator[geo.Point]{
		Dimensions:   1,
		MaxBits:      1,
		InputMapping: pointMapping(0.5), // rectangle straddles the 0.5 plane
		SplitAllowed: DefaultSplitAllowed(1000, 1000),
	}
	c, err := r.Walk(geo.Point{0.5})
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, c)
	if len(out) < 2 {
		t.Fatalf("expected replication across >= 2 cells, got %d", len(out))
	}
	canonical := 0
	for _, p := range out {
		if !p.IsReplicate {
			canonical++
		}
	}
	if canonical != 1 {
		t.Fatalf("expected exactly one canonical replicate, got %d", canonical)
	}
}

func TestSplitAllowedZeroForcesTruncation(t *testing.T) {
	r := &Replicator[geo.Point]{
		Dimensions:   1,
		MaxBits:      4,
		InputMapping: pointMapping(0.5),
		SplitAllowed: func(int, int) bool { return false },
	}
	c, err := r.Walk(geo.Point{0.5})
	if err != nil {
		t.Fatal(err)
	}
	out := drain(t, c)
	if len(out) != 1 {
		t.Fatalf("expected exactly one truncated cell when splitting is disallowed, got %d", len(out))
	}
}

func drain(t *testing.T, c cursor.Cursor[zcode.Payload[geo.Point]]) []zcode.Payload[geo.Point] {
	t.Helper()
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	var out []zcode.Payload[geo.Point]
	for c.HasNext() {
		v, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, v)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	return out
}
