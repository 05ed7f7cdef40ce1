package listcache_test

import (
	"encoding/binary"
	"io"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/xsweep/blockfile"
	"github.com/NVIDIA/xsweep/falloc"
	"github.com/NVIDIA/xsweep/listcache"
	"github.com/NVIDIA/xsweep/liststore"
)

type rec struct{ v int64 }

func (r *rec) Write(w io.Writer) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(r.v))
	_, err := w.Write(buf[:])
	return err
}

func (r *rec) Read(rd io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(rd, buf[:]); err != nil {
		return err
	}
	r.v = int64(binary.BigEndian.Uint64(buf[:]))
	return nil
}

func newStore(dir string) *liststore.Store[*rec] {
	prefix := filepath.Join(dir, "col")
	cf, err := blockfile.Open(prefix, blockfile.Geometry{BlockSize: 16, BlocksPerFile: 4})
	Expect(err).NotTo(HaveOccurred())
	s, err := liststore.Open(cf, falloc.NewManager(), 8, func() *rec { return &rec{} })
	Expect(err).NotTo(HaveOccurred())
	return s
}

func vals(vs ...int64) []*rec {
	out := make([]*rec, len(vs))
	for i, v := range vs {
		out[i] = &rec{v: v}
	}
	return out
}

var _ = Describe("Cache", func() {
	It("returns a write-through entry without touching the store before flush", func() {
		store := newStore(GinkgoT().TempDir())
		c, err := listcache.NewCache(store, 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.PutList(1, vals(1, 2, 3))).To(Succeed())
		Expect(store.ContainsList(1)).To(BeFalse())

		got, ok, err := c.GetList(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(HaveLen(3))
	})

	It("materializes a list equal to what was put after flush", func() {
		store := newStore(GinkgoT().TempDir())
		c, err := listcache.NewCache(store, 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.PutList(1, vals(10, 20))).To(Succeed())
		Expect(c.Flush()).To(Succeed())
		Expect(store.ContainsList(1)).To(BeTrue())

		got, ok, err := c.GetList(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got[0].v).To(Equal(int64(10)))
		Expect(got[1].v).To(Equal(int64(20)))
	})

	// Pins spec.md §8 property 6: forcing >= cacheSize+1 writes never loses
	// an update, because eviction of a WRITE entry flushes the whole cache
	// first.
	It("never loses a write across eviction pressure beyond cacheSize", func() {
		store := newStore(GinkgoT().TempDir())
		c, err := listcache.NewCache(store, 2)
		Expect(err).NotTo(HaveOccurred())

		for id := int64(1); id <= 5; id++ {
			Expect(c.PutList(id, vals(id*100))).To(Succeed())
		}

		for id := int64(1); id <= 5; id++ {
			got, ok, err := c.GetList(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(got).To(HaveLen(1))
			Expect(got[0].v).To(Equal(id * 100))
		}
	})

	It("deduplicates on AddEntry when unique is requested", func() {
		store := newStore(GinkgoT().TempDir())
		c, err := listcache.NewCache(store, 4)
		Expect(err).NotTo(HaveOccurred())
		eq := func(a, b *rec) bool { return a.v == b.v }

		Expect(c.AddEntry(1, &rec{v: 7}, true, eq)).To(Succeed())
		Expect(c.AddEntry(1, &rec{v: 7}, true, eq)).To(Succeed())
		Expect(c.AddEntry(1, &rec{v: 8}, true, eq)).To(Succeed())

		got, ok, err := c.GetList(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got).To(HaveLen(2))
	})

	It("Delete flushes then removes from the underlying store", func() {
		store := newStore(GinkgoT().TempDir())
		c, err := listcache.NewCache(store, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.PutList(1, vals(1))).To(Succeed())
		Expect(c.Delete(1)).To(Succeed())
		Expect(store.ContainsList(1)).To(BeFalse())
		_, ok, err := c.GetList(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})
