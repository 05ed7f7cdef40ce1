// Package liststore implements the persistent list storage of
// SPEC_FULL.md C4: a mapping from integer list identifiers to ordered lists
// of fixed-width, user-serialized records, built on top of blockfile (C2)
// and falloc (C3). Grounded on the teacher's bcklist bucket-list-on-disk
// layering (a catalog of named lists each backed by block storage) and its
// `NewBucketSummaries`-style directory-of-extents bookkeeping, generalized
// here to an arbitrary Record type via a generic Store[R].
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package liststore

import (
	"encoding/binary"
	"io"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/NVIDIA/xsweep/blockfile"
	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/falloc"
	"github.com/NVIDIA/xsweep/statcenter"
)

// Record is the user-supplied, fixed-width serialization contract of
// spec.md §4.4: every record in a given Store has the same on-disk width.
type Record interface {
	Write(w io.Writer) error
	Read(r io.Reader) error
}

// Factory constructs a zero-value Record for Read to populate.
type Factory[R Record] func() R

type catalogEntry struct {
	Pointer   int64 `json:"pointer"`
	NumBlocks int64 `json:"numBlocks"`
	Count     int64 `json:"count"`
}

// Store maps listId -> ordered list of R over a shared ColumnFile and
// free-block Manager. Its methods serialize on the Store's own mutex
// (spec.md §4.5 "Concurrency: C4 and C5 are single-threaded").
type Store[R Record] struct {
	mu        sync.Mutex
	cf        *blockfile.ColumnFile
	alloc     *falloc.Manager
	entrySize int64
	factory   Factory[R]
	center    statcenter.Center

	catalog map[int64]catalogEntry
}

// entriesPerBlock is the number of whole entries one block holds. No
// trailing forward-pointer is reserved: every list occupies exactly one
// right-sized extent (see Open's doc comment on the multi-extent
// simplification).
func entriesPerBlock(blockSize, entrySize int64) int64 { return blockSize / entrySize }

// Open builds a Store over an already-open ColumnFile and Manager. The
// caller owns both and must not use them from any other Store concurrently
// (spec.md §5 "Shared resources").
//
// Simplification from spec.md §4.4: "lists crossing extent boundaries store
// a forward-pointer in the trailing bytes of each extent's block run" is
// specified for incremental, unbounded growth. Because putList always knows
// the full replacement size up front ("if the new size fits the current
// extent, reuse in place; otherwise free the old extent(s) ... and allocate
// a new one"), every list here occupies exactly one right-sized extent;
// listcache's addEntry (C5) achieves incremental append by reading the
// current list and calling putList with the extended content, so every
// externally observable operation in §4.4's list matches the spec without
// needing a forward-pointer wire chain.
func Open(cf *blockfile.ColumnFile, alloc *falloc.Manager, entrySize int64, factory Factory[R], opts ...Option[R]) (*Store[R], error) {
	const op = "liststore.Open"
	if entrySize <= 0 {
		return nil, cmn.NewInvalidParameterError(op, "entrySize must be > 0")
	}
	s := &Store[R]{
		cf:        cf,
		alloc:     alloc,
		entrySize: entrySize,
		factory:   factory,
		center:    statcenter.Noop(),
		catalog:   make(map[int64]catalogEntry),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Option configures a Store at Open time.
type Option[R Record] func(*Store[R])

// WithStatCenter injects the optional counters side channel.
func WithStatCenter[R Record](c statcenter.Center) Option[R] {
	return func(s *Store[R]) { s.center = c }
}

func (s *Store[R]) numBlocksFor(size int64) int64 {
	epb := entriesPerBlock(s.cf.BlockSize(), s.entrySize)
	if size == 0 {
		return 1
	}
	return cmn.DivCeil(size, epb)
}

// GetEntries returns a cursor over listId's records, or (nil, nil) if no
// such list exists (spec.md §4.4 "null = no such list").
func (s *Store[R]) GetEntries(listId int64) (cursor.Cursor[R], error) {
	const op = "liststore.GetEntries"
	s.mu.Lock()
	defer s.mu.Unlock()

	ce, ok := s.catalog[listId]
	if !ok {
		return nil, nil
	}
	records, err := s.readExtentLocked(ce)
	if err != nil {
		return nil, cmn.NewIOError(op, "reading list extent", err)
	}
	return cursor.FromSlice(records), nil
}

// PutList replaces listId's contents with the records drained from src
// (size must equal the number of elements src will yield).
func (s *Store[R]) PutList(listId int64, src cursor.Cursor[R], size int64) error {
	const op = "liststore.PutList"
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]R, 0, size)
	if err := src.Open(); err != nil {
		return cmn.NewIOError(op, "opening source cursor", err)
	}
	for src.HasNext() {
		v, err := src.Next()
		if err != nil {
			_ = src.Close()
			return cmn.NewIOError(op, "draining source cursor", err)
		}
		records = append(records, v)
	}
	if err := src.Close(); err != nil {
		return cmn.NewIOError(op, "closing source cursor", err)
	}

	needed := s.numBlocksFor(int64(len(records)))
	if old, ok := s.catalog[listId]; ok {
		if old.NumBlocks >= needed {
			if err := s.writeExtentLocked(old.Pointer, records); err != nil {
				return cmn.NewIOError(op, "rewriting list in place", err)
			}
			old.Count = int64(len(records))
			s.catalog[listId] = old
			return nil
		}
		if err := s.alloc.MarkEmpty(old.Pointer, old.NumBlocks); err != nil {
			return cmn.NewIOError(op, "freeing old extent", err)
		}
	}

	p, err := s.alloc.GetPointer(needed)
	if err != nil {
		return cmn.NewIOError(op, "allocating new extent", err)
	}
	if err := s.writeExtentLocked(p, records); err != nil {
		return cmn.NewIOError(op, "writing new extent", err)
	}
	s.catalog[listId] = catalogEntry{Pointer: p, NumBlocks: needed, Count: int64(len(records))}
	return nil
}

// Remove frees listId's extent entirely.
func (s *Store[R]) Remove(listId int64) error {
	const op = "liststore.Remove"
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.catalog[listId]
	if !ok {
		return nil
	}
	if err := s.alloc.MarkEmpty(ce.Pointer, ce.NumBlocks); err != nil {
		return cmn.NewIOError(op, "freeing extent", err)
	}
	delete(s.catalog, listId)
	return nil
}

// GetListSize returns the element count of listId, or (0, false) if absent.
func (s *Store[R]) GetListSize(listId int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.catalog[listId]
	return ce.Count, ok
}

// ContainsList reports whether listId exists.
func (s *Store[R]) ContainsList(listId int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.catalog[listId]
	return ok
}

// GetIDs returns every list identifier currently in the store, ascending.
func (s *Store[R]) GetIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.catalog))
	for id := range s.catalog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetLargestID returns the largest list identifier present, or (0, false)
// if the store is empty.
func (s *Store[R]) GetLargestID() (int64, bool) {
	ids := s.GetIDs()
	if len(ids) == 0 {
		return 0, false
	}
	return ids[len(ids)-1], true
}

// EntrySet returns every (listId, size) pair currently in the store.
func (s *Store[R]) EntrySet() map[int64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int64, len(s.catalog))
	for id, ce := range s.catalog {
		out[id] = ce.Count
	}
	return out
}

func (s *Store[R]) writeExtentLocked(pointer int64, records []R) error {
	epb := entriesPerBlock(s.cf.BlockSize(), s.entrySize)
	block := make([]byte, s.cf.BlockSize())
	for i := 0; i < len(records); i += int(epb) {
		end := i + int(epb)
		if end > len(records) {
			end = len(records)
		}
		for k := range block {
			block[k] = 0
		}
		off := 0
		for _, rec := range records[i:end] {
			w := sliceWriter{buf: block[off : off+int(s.entrySize)]}
			if err := rec.Write(&w); err != nil {
				return cmn.NewSerializationError("liststore.writeExtent", "record write", err)
			}
			off += int(s.entrySize)
		}
		blockID := pointer + int64(i)/epb
		if err := s.cf.Insert(blockID, block); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store[R]) readExtentLocked(ce catalogEntry) ([]R, error) {
	epb := entriesPerBlock(s.cf.BlockSize(), s.entrySize)
	out := make([]R, 0, ce.Count)
	block := make([]byte, s.cf.BlockSize())
	remaining := ce.Count
	for b := int64(0); remaining > 0; b++ {
		if err := s.cf.Select(ce.Pointer+b, block); err != nil {
			return nil, err
		}
		n := epb
		if remaining < n {
			n = remaining
		}
		off := 0
		for i := int64(0); i < n; i++ {
			rec := s.factory()
			r := sliceReader{buf: block[off : off+int(s.entrySize)]}
			if err := rec.Read(&r); err != nil {
				return nil, cmn.NewSerializationError("liststore.readExtent", "record read", err)
			}
			out = append(out, rec)
			off += int(s.entrySize)
		}
		remaining -= n
	}
	return out, nil
}

// Persist writes the list catalog (not the records themselves, which live
// in the ColumnFile/Manager already) as JSON.
func (s *Store[R]) Persist(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := jsoniter.Marshal(s.catalog)
	if err != nil {
		return cmn.NewSerializationError("liststore.Persist", "marshaling catalog", err)
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return cmn.NewIOError("liststore.Persist", "writing catalog length", err)
	}
	if _, err := w.Write(b); err != nil {
		return cmn.NewIOError("liststore.Persist", "writing catalog", err)
	}
	return nil
}

// LoadCatalog replays a catalog written by Persist into s, replacing its
// current catalog.
func (s *Store[R]) LoadCatalog(r io.Reader) error {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return cmn.NewIOError("liststore.LoadCatalog", "reading catalog length", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return cmn.NewIOError("liststore.LoadCatalog", "reading catalog", err)
	}
	cat := make(map[int64]catalogEntry)
	if err := jsoniter.Unmarshal(buf, &cat); err != nil {
		return cmn.NewSerializationError("liststore.LoadCatalog", "unmarshaling catalog", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = cat
	return nil
}

// sliceWriter/sliceReader adapt a fixed-size byte slice to io.Writer/Reader
// for Record.Write/Read, enforcing the exactly-entrySize-bytes contract of
// spec.md §6 ("exactly entrySize bytes per call").
type sliceWriter struct {
	buf []byte
	pos int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

type sliceReader struct {
	buf []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}
