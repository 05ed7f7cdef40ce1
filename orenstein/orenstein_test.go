package orenstein

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/sweep"
	"github.com/NVIDIA/xsweep/zcode"
)

func code(bits uint64, precision int) zcode.Code { return zcode.New(bits, precision) }

func payload(v int, c zcode.Code) zcode.Payload[int] {
	return zcode.Payload[int]{Data: v, ZCode: c}
}

func drain(c cursor.Cursor[sweep.Tuple[zcode.Payload[int], zcode.Payload[int]]]) []sweep.Tuple[zcode.Payload[int], zcode.Payload[int]] {
	Expect(c.Open()).To(Succeed())
	var out []sweep.Tuple[zcode.Payload[int], zcode.Payload[int]]
	for c.HasNext() {
		v, err := c.Next()
		Expect(err).NotTo(HaveOccurred())
		out = append(out, v)
	}
	Expect(c.Close()).To(Succeed())
	return out
}

var _ = Describe("Join", func() {
	// Pins spec.md §8 property 9: two payloads whose Z-codes are
	// prefix-related (one a proper prefix of the other) match even though
	// they are not bitwise identical.
	It("matches on prefix-related codes", func() {
		// left: a coarse cell (precision 2) that is a prefix of the
		// right's finer cell (precision 4, same leading bits).
		left := cursor.FromSlice([]zcode.Payload[int]{payload(1, code(0b00<<62, 2))})
		right := cursor.FromSlice([]zcode.Payload[int]{payload(2, code(0b0010<<60, 4))})

		c, err := Join[int, int](left, right, func(l, r int) bool { return true })
		Expect(err).NotTo(HaveOccurred())
		out := drain(c)
		Expect(out).To(HaveLen(1))
		Expect(out[0].Left.Data).To(Equal(1))
		Expect(out[0].Right.Data).To(Equal(2))
	})

	// Pins spec.md §8 property 10: disjoint cells never match even when
	// the user data predicate would always accept.
	It("rejects non-prefix-related codes", func() {
		left := cursor.FromSlice([]zcode.Payload[int]{payload(1, code(0b00<<62, 2))})
		right := cursor.FromSlice([]zcode.Payload[int]{payload(2, code(0b11<<62, 2))})

		c, err := Join[int, int](left, right, func(l, r int) bool { return true })
		Expect(err).NotTo(HaveOccurred())
		out := drain(c)
		Expect(out).To(BeEmpty())
	})

	// The Match callback ANDs the user predicate onto the prefix relation
	// rather than replacing it.
	It("ANDs the data predicate onto the prefix relation", func() {
		left := cursor.FromSlice([]zcode.Payload[int]{payload(1, code(0b00<<62, 2))})
		right := cursor.FromSlice([]zcode.Payload[int]{payload(2, code(0b0010<<60, 4))})

		c, err := Join[int, int](left, right, func(l, r int) bool { return false })
		Expect(err).NotTo(HaveOccurred())
		out := drain(c)
		Expect(out).To(BeEmpty())
	})

	It("rejects a nil predicate", func() {
		left := cursor.FromSlice([]zcode.Payload[int]{})
		right := cursor.FromSlice([]zcode.Payload[int]{})
		_, err := Join[int, int](left, right, nil)
		Expect(err).To(HaveOccurred())
	})
})

// Exercises Stack's reorganization rule directly (spec.md §4.9): entries
// whose Z-code is not a prefix of the new current status are popped.
var _ = Describe("Stack", func() {
	It("reorganize keeps only prefixes of the current status", func() {
		s := NewStack[int]()
		s.Insert(payload(1, code(0b00<<62, 2)))  // prefix of 0b0010...
		s.Insert(payload(2, code(0b11<<62, 2)))  // not a prefix
		s.Reorganize(payload(3, code(0b0010<<60, 4)))
		Expect(s.entries).To(HaveLen(1))
		Expect(s.entries[0].Data).To(Equal(1))
	})
})
