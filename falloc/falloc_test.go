package falloc_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/xsweep/falloc"
)

var _ = Describe("Manager", func() {
	It("extends from lastUsedBlock when the pool is empty", func() {
		m := falloc.NewManager()
		p, err := m.GetPointer(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(int64(1)))
		Expect(m.LastUsedBlock()).To(Equal(int64(3)))
	})

	// Pins spec.md §9 scenario S2: a sequence of markEmpty/getPointer calls
	// that exercises fragment reinsertion without coalescing.
	It("reproduces scenario S2 without coalescing", func() {
		m := falloc.NewManager()

		p1, err := m.GetPointer(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p1).To(Equal(int64(1)))

		p2, err := m.GetPointer(5)
		Expect(err).NotTo(HaveOccurred())
		Expect(p2).To(Equal(int64(4)))

		Expect(m.MarkEmpty(4, 5)).To(Succeed())

		p3, err := m.GetPointer(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(p3).To(Equal(int64(4)))

		p4, err := m.GetPointer(2)
		Expect(err).NotTo(HaveOccurred())
		Expect(p4).To(Equal(int64(6)))

		p5, err := m.GetPointer(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(p5).To(Equal(int64(9)))
	})

	It("never returns an overlapping pointer across many fragment/reallocate cycles", func() {
		m := falloc.NewManager()
		allocated := map[int64]int64{} // pointer -> length, currently live

		overlaps := func(p, n int64) bool {
			for q, ln := range allocated {
				if p < q+ln && q < p+n {
					return true
				}
			}
			return false
		}

		var live []falloc.Extent
		for i := 0; i < 200; i++ {
			n := int64(1 + i%7)
			p, err := m.GetPointer(n)
			Expect(err).NotTo(HaveOccurred())
			Expect(overlaps(p, n)).To(BeFalse(), "allocation must not overlap a live extent")
			allocated[p] = n
			live = append(live, falloc.Extent{Pointer: p, Length: n})

			if len(live) > 3 {
				victim := live[0]
				live = live[1:]
				delete(allocated, victim.Pointer)
				Expect(m.MarkEmpty(victim.Pointer, victim.Length)).To(Succeed())
			}
		}
	})

	It("round trips the extent stream through Persist/Load", func() {
		m := falloc.NewManager()
		_, err := m.GetPointer(4)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.MarkEmpty(10, 3)).To(Succeed())
		Expect(m.MarkEmpty(20, 7)).To(Succeed())

		var buf bytes.Buffer
		Expect(m.Persist(&buf)).To(Succeed())

		loaded, err := falloc.Load(&buf, m.LastUsedBlock())
		Expect(err).NotTo(HaveOccurred())

		p, err := loaded.GetPointer(3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(int64(10)))

		p2, err := loaded.GetPointer(7)
		Expect(err).NotTo(HaveOccurred())
		Expect(p2).To(Equal(int64(20)))
	})

	It("rejects non-positive allocation requests", func() {
		m := falloc.NewManager()
		_, err := m.GetPointer(0)
		Expect(err).To(HaveOccurred())
	})
})
