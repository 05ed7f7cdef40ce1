package extsort

import (
	"encoding/binary"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/queue"
)

type intCodec struct{}

func (intCodec) Encode(w io.Writer, v int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func (intCodec) Decode(r io.Reader) (int, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf[:])), nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newRunFactory(dir string) func() (queue.Queue[int], error) {
	return func() (queue.Queue[int], error) {
		f := queue.Factory[int]{Dir: dir, Codec: intCodec{}}
		return f.New()
	}
}

var _ = Describe("Sort", func() {
	// Pins spec.md §8 scenario S4: reverse-enumerated input sorts back
	// into order and materializes >= 10 runs under a small memSize.
	It("produces a sorted permutation across many runs", func() {
		const n = 10000
		input := make([]int, n)
		for i := range input {
			input[i] = n - 1 - i
		}

		cfg := Config[int]{
			MemSize:    1000,
			ObjectSize: 1,
			ReadBuf:    1,
			WriteBuf:   1,
			NewRun:     newRunFactory(GinkgoT().TempDir()),
			Cmp:        cmpInt,
		}

		out, stats, err := Sort[int](cursor.FromSlice(input), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Runs).To(BeNumerically(">=", 10))

		Expect(out.Open()).To(Succeed())
		defer out.Close()
		prev := -1
		count := 0
		for out.HasNext() {
			v, err := out.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNumerically(">=", prev))
			prev = v
			count++
		}
		Expect(count).To(Equal(n))
	})

	It("handles empty input", func() {
		cfg := Config[int]{
			MemSize:    100,
			ObjectSize: 1,
			ReadBuf:    1,
			WriteBuf:   1,
			NewRun:     newRunFactory(GinkgoT().TempDir()),
			Cmp:        cmpInt,
		}
		out, stats, err := Sort[int](cursor.FromSlice[int](nil), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Runs).To(Equal(0))
		Expect(out.Open()).To(Succeed())
		Expect(out.HasNext()).To(BeFalse())
		_ = out.Close()
	})

	It("merges a single pass when runs stay within fan-in", func() {
		cfg := Config[int]{
			MemSize:    4,
			ObjectSize: 1,
			ReadBuf:    100,
			WriteBuf:   100,
			NewRun:     newRunFactory(GinkgoT().TempDir()),
			Cmp:        cmpInt,
		}
		input := []int{5, 3, 1, 4, 2}
		out, _, err := Sort[int](cursor.FromSlice(input), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Open()).To(Succeed())
		defer out.Close()
		var got []int
		for out.HasNext() {
			v, err := out.Next()
			Expect(err).NotTo(HaveOccurred())
			got = append(got, v)
		}
		Expect(got).To(Equal([]int{1, 2, 3, 4, 5}))
	})
})
