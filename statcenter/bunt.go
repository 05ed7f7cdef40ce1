package statcenter

import (
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/NVIDIA/xsweep/cmn"
)

const autoShrinkSize = cmn.MiB

// bunt is a Center backed by a BuntDB file, so counters survive process
// restarts across long-running batch jobs (extsort's run/merge counters in
// particular). Grounded directly on dbdriver.BuntDriver's Update/View shape
// and periodic-sync/auto-shrink configuration.
type bunt struct {
	mu sync.Mutex
	db *buntdb.DB
	// cache holds the current value of every counter, so Snapshot reads it
	// without a transaction; each Inc still writes its counter through to
	// the database (see buntCounter), and Close writes every counter again.
	cache map[string]*memCounter
}

// NewBunt opens (creating if necessary) a BuntDB-backed persistent Center at
// path.
func NewBunt(path string) (Center, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.NewIOError("statcenter.NewBunt", "opening bunt database", err)
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSize,
		AutoShrinkPercentage: 50,
	})
	b := &bunt{db: db, cache: make(map[string]*memCounter)}
	if err := b.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *bunt) load() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("counter:*", func(key, value string) bool {
			name := key[len("counter:"):]
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return true
			}
			c := &memCounter{}
			c.v.Store(n)
			b.cache[name] = c
			return true
		})
	})
}

func (b *bunt) GetCounter(name string) Counter {
	b.mu.Lock()
	c, ok := b.cache[name]
	if !ok {
		c = &memCounter{}
		b.cache[name] = c
	}
	b.mu.Unlock()
	return &buntCounter{bunt: b, name: name, memCounter: c}
}

func (b *bunt) persist(name string, value int64) {
	key := "counter:" + name
	val := strconv.FormatInt(value, 10)
	_ = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, val, nil)
		return err
	})
}

func (b *bunt) Snapshot() map[string]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int64, len(b.cache))
	for k, v := range b.cache {
		out[k] = v.Value()
	}
	return out
}

// Close flushes and closes the underlying BuntDB file.
func (b *bunt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, c := range b.cache {
		b.persist(name, c.Value())
	}
	return b.db.Close()
}

// buntCounter writes through to its bunt.Center on every Inc, trading a
// jsoniter-free strconv round trip per increment for simplicity; callers on
// a hot path should prefer statcenter.NewMemory and periodically copy into
// a bunt-backed center if persistence is only needed at checkpoints.
type buntCounter struct {
	*bunt
	name string
	*memCounter
}

func (c *buntCounter) Inc(n int64) {
	c.memCounter.Inc(n)
	c.bunt.persist(c.name, c.memCounter.Value())
}

// SnapshotJSON serializes a Center's Snapshot to JSON using jsoniter, for
// callers that want to ship counters out-of-process (e.g. into a batch job
// summary file).
func SnapshotJSON(c Center) ([]byte, error) {
	b, err := jsoniter.Marshal(c.Snapshot())
	if err != nil {
		return nil, cmn.NewSerializationError("statcenter.SnapshotJSON", "marshaling snapshot", err)
	}
	return b, nil
}
