// Package blockfile implements the block-addressed column file of
// SPEC_FULL.md C2: a persistent array of fixed-size blocks split across a
// chain of physical files <prefix>, <prefix>.2, <prefix>.3, ... Grounded on
// the teacher's fs.MountedFS/MountpathInfo "one filesystem handle, many
// logical paths" discipline (fs/mountfs.go), rewritten around a single
// open *os.File rather than a set of mounted directories.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package blockfile

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/glog"
	"github.com/karrick/godirwalk"

	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/statcenter"
)

// Geometry is the caller-supplied block/file layout, per spec.md §3: no
// header is persisted, so Open must be called with the same Geometry every
// time.
type Geometry struct {
	BlockSize     int64
	BlocksPerFile int64
}

func (g Geometry) validate(op string) error {
	if g.BlockSize <= 0 {
		return cmn.NewInvalidParameterError(op, "blockSize must be > 0")
	}
	if g.BlocksPerFile <= 0 {
		return cmn.NewInvalidParameterError(op, "blocksPerFile must be > 0")
	}
	return nil
}

func (g Geometry) digest() uint64 {
	h := xxhash.New64()
	fmt.Fprintf(h, "%d:%d", g.BlockSize, g.BlocksPerFile)
	return h.Sum64()
}

// ColumnFile is a persistent array of blocks addressed by a 1-based blockID,
// spanning a chain of physical files opened lazily and at most one at a
// time (§4.2, §4.12 "Column-file handle" state machine).
type ColumnFile struct {
	mu     sync.Mutex
	prefix string
	geom   Geometry
	center statcenter.Center

	size       int64 // persisted block count
	openFileNo int64 // 0 means "no file open"
	openFile   *os.File
}

// Option configures a ColumnFile at Open time.
type Option func(*ColumnFile)

// WithStatCenter injects the optional counters side channel of spec.md §6.
// The core functions identically without one (statcenter.Noop is the
// default).
func WithStatCenter(c statcenter.Center) Option {
	return func(cf *ColumnFile) { cf.center = c }
}

// Open discovers the existing physical files for prefix (if any) via
// godirwalk over the parent directory, computes the persisted block count
// from their sizes, and returns a ready-to-use ColumnFile. A prefix with no
// existing physical files opens empty (size 0).
func Open(prefix string, geom Geometry, opts ...Option) (*ColumnFile, error) {
	const op = "blockfile.Open"
	if err := geom.validate(op); err != nil {
		return nil, err
	}
	cf := &ColumnFile{prefix: prefix, geom: geom, center: statcenter.Noop()}
	for _, o := range opts {
		o(cf)
	}

	sizes, err := existingPhysicalFileSizes(prefix)
	if err != nil {
		return nil, cmn.NewIOError(op, "enumerating physical files", err)
	}
	var total int64
	for i := 1; ; i++ {
		sz, ok := sizes[i]
		if !ok {
			break
		}
		total += sz / geom.BlockSize
	}
	cf.size = total
	glog.V(4).Infof("blockfile: opened %q size=%d geometry=%+v", prefix, cf.size, geom)
	return cf, nil
}

// existingPhysicalFileSizes walks the directory containing prefix and
// returns file-number -> size in bytes for every <prefix>[.N] found,
// grounded on the teacher's fs/walk.go directory-scan idiom.
func existingPhysicalFileSizes(prefix string) (map[int]int64, error) {
	dir, base := splitPrefix(prefix)
	out := map[int]int64{}
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			n, ok := matchPhysicalFile(path, dir, base)
			if !ok {
				return nil
			}
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			out[n] = fi.Size()
			return nil
		},
	})
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	return out, nil
}

// physicalPath returns the on-disk path of physical file fileNo (1-based).
func (cf *ColumnFile) physicalPath(fileNo int64) string {
	if fileNo == 1 {
		return cf.prefix
	}
	return fmt.Sprintf("%s.%d", cf.prefix, fileNo)
}

func fileNumber(blockID, blocksPerFile int64) int64 {
	return (blockID-1)/blocksPerFile + 1
}

func offset(blockID, blocksPerFile, blockSize int64) int64 {
	return ((blockID - 1) % blocksPerFile) * blockSize
}

// BlockSize returns the fixed block size this ColumnFile was opened with.
func (cf *ColumnFile) BlockSize() int64 { return cf.geom.BlockSize }

// Size returns the persisted block count.
func (cf *ColumnFile) Size() int64 {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.size
}

// Select reads block blockID into out, which must be at least BlockSize
// bytes. §4.2: not-found past the end, invalid for blockID <= 0 (checked
// before not-found, per spec.md §9), buffer-too-small otherwise.
func (cf *ColumnFile) Select(blockID int64, out []byte) error {
	const op = "blockfile.Select"
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if blockID <= 0 {
		return cmn.NewInvalidParameterError(op, "blockId must be > 0")
	}
	if int64(len(out)) < cf.geom.BlockSize {
		return cmn.NewInvalidParameterError(op, "output buffer smaller than blockSize")
	}
	if blockID > cf.size {
		return cmn.NewNotFoundError(op, fmt.Sprintf("blockId %d past end of file (size %d)", blockID, cf.size))
	}

	f, err := cf.openAt(blockID)
	if err != nil {
		return cmn.NewIOError(op, "opening physical file", err)
	}
	off := offset(blockID, cf.geom.BlocksPerFile, cf.geom.BlockSize)
	if _, err := f.ReadAt(out[:cf.geom.BlockSize], off); err != nil {
		return cmn.NewIOError(op, "reading block", err)
	}
	cf.center.GetCounter("blockfile_blocksRead").Inc(1)
	return nil
}

// Insert writes block blockID, zero-filling and advancing Size() if
// blockID is past the current logical end (§4.2, §8 property 2).
func (cf *ColumnFile) Insert(blockID int64, in []byte) error {
	const op = "blockfile.Insert"
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if blockID <= 0 {
		return cmn.NewInvalidParameterError(op, "blockId must be > 0")
	}
	if int64(len(in)) < cf.geom.BlockSize {
		return cmn.NewInvalidParameterError(op, "input buffer smaller than blockSize")
	}

	if blockID > cf.size+1 {
		if err := cf.growLocked(blockID - 1); err != nil {
			return err
		}
	}

	f, err := cf.openAt(blockID)
	if err != nil {
		return cmn.NewIOError(op, "opening physical file", err)
	}
	off := offset(blockID, cf.geom.BlocksPerFile, cf.geom.BlockSize)
	if _, err := f.WriteAt(in[:cf.geom.BlockSize], off); err != nil {
		return cmn.NewIOError(op, "writing block", err)
	}
	if blockID > cf.size {
		cf.size = blockID
	}
	cf.center.GetCounter("blockfile_blocksWritten").Inc(1)
	return nil
}

// SetSize grows (zero-filling) or truncates (deleting now-empty trailing
// physical files) to exactly n blocks, per §4.2/§8 property 3.
func (cf *ColumnFile) SetSize(n int64) error {
	const op = "blockfile.SetSize"
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if n < 0 {
		return cmn.NewInvalidParameterError(op, "size must be >= 0")
	}
	if n >= cf.size {
		return cf.growLocked(n)
	}
	return cf.truncateLocked(n)
}

func (cf *ColumnFile) growLocked(n int64) error {
	if n <= cf.size {
		return nil
	}
	zero := make([]byte, cf.geom.BlockSize)
	for b := cf.size + 1; b <= n; b++ {
		f, err := cf.openAt(b)
		if err != nil {
			return cmn.NewIOError("blockfile.grow", "opening physical file", err)
		}
		off := offset(b, cf.geom.BlocksPerFile, cf.geom.BlockSize)
		if _, err := f.WriteAt(zero, off); err != nil {
			return cmn.NewIOError("blockfile.grow", "zero-filling block", err)
		}
	}
	cf.size = n
	return nil
}

func (cf *ColumnFile) truncateLocked(n int64) error {
	lastFileToKeep := int64(0)
	if n > 0 {
		lastFileToKeep = fileNumber(n, cf.geom.BlocksPerFile)
	}
	oldLastFile := fileNumber(cf.size, cf.geom.BlocksPerFile)
	if cf.size == 0 {
		oldLastFile = 0
	}

	if n > 0 {
		f, err := cf.openAt(n)
		if err != nil {
			return cmn.NewIOError("blockfile.SetSize", "opening physical file", err)
		}
		newFileLen := ((n-1)%cf.geom.BlocksPerFile + 1) * cf.geom.BlockSize
		if err := f.Truncate(newFileLen); err != nil {
			return cmn.NewIOError("blockfile.SetSize", "truncating physical file", err)
		}
	}

	for fn := oldLastFile; fn > lastFileToKeep; fn-- {
		if fn == cf.openFileNo {
			_ = cf.openFile.Close()
			cf.openFileNo, cf.openFile = 0, nil
		}
		if err := os.Remove(cf.physicalPath(fn)); err != nil && !os.IsNotExist(err) {
			return cmn.NewIOError("blockfile.SetSize", "deleting trailing physical file", err)
		}
	}
	cf.size = n
	return nil
}

// openAt ensures the physical file that holds blockID is the currently open
// handle, closing any other open handle first (§4.2 "at most one physical
// file handle", §4.12 state machine).
func (cf *ColumnFile) openAt(blockID int64) (*os.File, error) {
	fn := fileNumber(blockID, cf.geom.BlocksPerFile)
	if cf.openFileNo == fn {
		return cf.openFile, nil
	}
	if cf.openFile != nil {
		_ = cf.openFile.Close()
		cf.openFile, cf.openFileNo = nil, 0
	}
	f, err := os.OpenFile(cf.physicalPath(fn), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	cf.openFile, cf.openFileNo = f, fn
	return f, nil
}

// Close releases the currently open physical file, per §4.2.
func (cf *ColumnFile) Close() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if cf.openFile == nil {
		return nil
	}
	err := cf.openFile.Close()
	cf.openFile, cf.openFileNo = nil, 0
	return err
}

var _ io.Closer = (*ColumnFile)(nil)
