package liststore

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/NVIDIA/xsweep/blockfile"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/falloc"
)

type int64Record struct{ v int64 }

func (r *int64Record) Write(w io.Writer) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(r.v))
	_, err := w.Write(buf[:])
	return err
}

func (r *int64Record) Read(rd io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(rd, buf[:]); err != nil {
		return err
	}
	r.v = int64(binary.BigEndian.Uint64(buf[:]))
	return nil
}

func newTestStore(t *testing.T) *Store[*int64Record] {
	t.Helper()
	prefix := filepath.Join(t.TempDir(), "col")
	cf, err := blockfile.Open(prefix, blockfile.Geometry{BlockSize: 16, BlocksPerFile: 4})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cf.Close() })
	s, err := Open(cf, falloc.NewManager(), 8, func() *int64Record { return &int64Record{} })
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func values(vs ...int64) []*int64Record {
	out := make([]*int64Record, len(vs))
	for i, v := range vs {
		out[i] = &int64Record{v: v}
	}
	return out
}

func drainInts(t *testing.T, c cursor.Cursor[*int64Record]) []int64 {
	t.Helper()
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	var out []int64
	for c.HasNext() {
		v, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, v.v)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestPutListThenGetEntries(t *testing.T) {
	s := newTestStore(t)
	recs := values(1, 2, 3, 4, 5)
	if err := s.PutList(7, cursor.FromSlice(recs), int64(len(recs))); err != nil {
		t.Fatal(err)
	}
	c, err := s.GetEntries(7)
	if err != nil {
		t.Fatal(err)
	}
	got := drainInts(t, c)
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestGetEntriesMissingListReturnsNil(t *testing.T) {
	s := newTestStore(t)
	c, err := s.GetEntries(99)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil cursor for missing list")
	}
}

func TestPutListReplacesAndShrinks(t *testing.T) {
	s := newTestStore(t)
	big := values(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	if err := s.PutList(1, cursor.FromSlice(big), int64(len(big))); err != nil {
		t.Fatal(err)
	}
	small := values(42)
	if err := s.PutList(1, cursor.FromSlice(small), int64(len(small))); err != nil {
		t.Fatal(err)
	}
	size, ok := s.GetListSize(1)
	if !ok || size != 1 {
		t.Fatalf("size=%d ok=%v", size, ok)
	}
	c, err := s.GetEntries(1)
	if err != nil {
		t.Fatal(err)
	}
	got := drainInts(t, c)
	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("got %v", got)
	}
}

func TestRemoveFreesExtent(t *testing.T) {
	s := newTestStore(t)
	recs := values(1, 2)
	if err := s.PutList(5, cursor.FromSlice(recs), 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(5); err != nil {
		t.Fatal(err)
	}
	if s.ContainsList(5) {
		t.Fatal("expected list removed")
	}
}

func TestGetIDsAndLargestID(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{3, 1, 2} {
		if err := s.PutList(id, cursor.FromSlice(values(id)), 1); err != nil {
			t.Fatal(err)
		}
	}
	ids := s.GetIDs()
	want := []int64{1, 2, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v want %v", ids, want)
		}
	}
	largest, ok := s.GetLargestID()
	if !ok || largest != 3 {
		t.Fatalf("largest=%d ok=%v", largest, ok)
	}
}
