package blockfile

import (
	"path/filepath"
	"strconv"
	"strings"
)

// splitPrefix separates prefix into the directory to scan and the base file
// name physical files are named after.
func splitPrefix(prefix string) (dir, base string) {
	dir = filepath.Dir(prefix)
	base = filepath.Base(prefix)
	return
}

// matchPhysicalFile reports whether path (found while walking dir) is a
// physical file belonging to base - either exactly base (file number 1) or
// base + "." + N for N >= 2 - and if so returns its file number.
func matchPhysicalFile(path, dir, base string) (int, bool) {
	name := filepath.Base(path)
	if filepath.Dir(path) != dir && dir != "." {
		// godirwalk may report paths relative to dir; fall through to
		// name-only matching either way.
	}
	if name == base {
		return 1, true
	}
	prefix := base + "."
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	suffix := strings.TrimPrefix(name, prefix)
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 2 {
		return 0, false
	}
	return n, true
}
