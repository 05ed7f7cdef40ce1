// Package listcache implements the buffered (write-through LRU) list
// storage of SPEC_FULL.md C5, layered over liststore.Store (C4). Grounded
// on the teacher's lru package's core idea - evict the coldest entry once a
// capacity watermark is exceeded - generalized from lru's per-object,
// heap-ordered disk eviction to a classic recency-ordered in-memory cache
// via container/list, since no example repo carries a third-party
// in-memory LRU cache library; see DESIGN.md for the stdlib justification.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package listcache

import (
	"container/list"
	"sync"

	"github.com/golang/glog"

	"github.com/NVIDIA/xsweep/cmn"
	"github.com/NVIDIA/xsweep/cursor"
	"github.com/NVIDIA/xsweep/liststore"
)

type dirty int

const (
	clean dirty = iota
	read
	write
)

type entry[R liststore.Record] struct {
	listId int64
	list   []R
	state  dirty
}

// Cache is a write-through LRU layered over a liststore.Store, sized by
// entry count (cacheSize), per spec.md §4.5.
type Cache[R liststore.Record] struct {
	mu        sync.Mutex
	store     *liststore.Store[R]
	cacheSize int

	ll    *list.List // of *entry[R], front = most recently used
	items map[int64]*list.Element
}

// NewCache wraps store with a write-through LRU of at most cacheSize
// entries.
func NewCache[R liststore.Record](store *liststore.Store[R], cacheSize int) (*Cache[R], error) {
	const op = "listcache.NewCache"
	if cacheSize <= 0 {
		return nil, cmn.NewInvalidParameterError(op, "cacheSize must be > 0")
	}
	return &Cache[R]{
		store:     store,
		cacheSize: cacheSize,
		ll:        list.New(),
		items:     make(map[int64]*list.Element),
	}, nil
}

func (c *Cache[R]) touch(el *list.Element) {
	c.ll.MoveToFront(el)
}

// GetList returns listId's entries, reading through to the store on a
// cache miss. A dirty WRITE entry in the cache is returned without
// touching the store (spec.md §4.5 "subsequent getList returns the
// in-memory list without touching C4").
func (c *Cache[R]) GetList(listId int64) ([]R, bool, error) {
	const op = "listcache.GetList"
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[listId]; ok {
		c.touch(el)
		e := el.Value.(*entry[R])
		return e.list, true, nil
	}

	cur, err := c.store.GetEntries(listId)
	if err != nil {
		return nil, false, cmn.NewIOError(op, "reading through to store", err)
	}
	if cur == nil {
		return nil, false, nil
	}
	if err := cur.Open(); err != nil {
		return nil, false, cmn.NewIOError(op, "opening store cursor", err)
	}
	var list []R
	for cur.HasNext() {
		v, err := cur.Next()
		if err != nil {
			_ = cur.Close()
			return nil, false, cmn.NewIOError(op, "draining store cursor", err)
		}
		list = append(list, v)
	}
	if err := cur.Close(); err != nil {
		return nil, false, cmn.NewIOError(op, "closing store cursor", err)
	}

	if err := c.insertLocked(listId, list, read); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// PutList replaces listId's contents in the cache, marking it WRITE
// (spec.md §4.5).
func (c *Cache[R]) PutList(listId int64, l []R) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(listId, l, write)
}

// AddEntry loads (or creates) listId, appends value, and marks the entry
// WRITE. When unique is true a linear scan suppresses the append if an
// equal element (by eq) already exists.
func (c *Cache[R]) AddEntry(listId int64, value R, unique bool, eq func(a, b R) bool) error {
	const op = "listcache.AddEntry"
	c.mu.Lock()
	defer c.mu.Unlock()

	var current []R
	if el, ok := c.items[listId]; ok {
		c.touch(el)
		current = el.Value.(*entry[R]).list
	} else {
		cur, err := c.store.GetEntries(listId)
		if err != nil {
			return cmn.NewIOError(op, "reading through to store", err)
		}
		if cur != nil {
			if err := cur.Open(); err != nil {
				return cmn.NewIOError(op, "opening store cursor", err)
			}
			for cur.HasNext() {
				v, err := cur.Next()
				if err != nil {
					_ = cur.Close()
					return cmn.NewIOError(op, "draining store cursor", err)
				}
				current = append(current, v)
			}
			if err := cur.Close(); err != nil {
				return cmn.NewIOError(op, "closing store cursor", err)
			}
		}
	}

	if unique {
		for _, existing := range current {
			if eq(existing, value) {
				return c.insertLocked(listId, current, write)
			}
		}
	}
	current = append(current, value)
	return c.insertLocked(listId, current, write)
}

// insertLocked must be called with c.mu held.
func (c *Cache[R]) insertLocked(listId int64, l []R, d dirty) error {
	if el, ok := c.items[listId]; ok {
		e := el.Value.(*entry[R])
		e.list = l
		if d == write || e.state == clean {
			e.state = d
		}
		c.touch(el)
		return nil
	}
	if c.ll.Len() >= c.cacheSize {
		if err := c.evictOneLocked(); err != nil {
			return err
		}
	}
	el := c.ll.PushFront(&entry[R]{listId: listId, list: l, state: d})
	c.items[listId] = el
	return nil
}

// evictOneLocked evicts the least recently used entry. Per spec.md §4.5,
// evicting a WRITE entry first flushes the whole cache (cheaper than a
// single flush on block-aligned storage) and only then evicts.
func (c *Cache[R]) evictOneLocked() error {
	back := c.ll.Back()
	if back == nil {
		return nil
	}
	e := back.Value.(*entry[R])
	if e.state == write {
		glog.V(4).Infof("listcache: flushing cache before evicting dirty list %d", e.listId)
		if err := c.flushLocked(); err != nil {
			return err
		}
	}
	c.ll.Remove(back)
	delete(c.items, e.listId)
	return nil
}

// Flush writes every WRITE entry to the underlying store and downgrades it
// to READ.
func (c *Cache[R]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache[R]) flushLocked() error {
	const op = "listcache.Flush"
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[R])
		if e.state != write {
			continue
		}
		if err := c.store.PutList(e.listId, cursor.FromSlice(e.list), int64(len(e.list))); err != nil {
			return cmn.NewIOError(op, "flushing dirty list", err)
		}
		e.state = read
	}
	return nil
}

// Delete removes listId from both the cache and the underlying store,
// implicitly flushing first per spec.md §4.5.
func (c *Cache[R]) Delete(listId int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	if el, ok := c.items[listId]; ok {
		c.ll.Remove(el)
		delete(c.items, listId)
	}
	return c.store.Remove(listId)
}

// GetIDs implicitly flushes, then returns every list identifier known to
// the underlying store.
func (c *Cache[R]) GetIDs() ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return nil, err
	}
	return c.store.GetIDs(), nil
}

// EntrySet implicitly flushes, then returns every (listId, size) pair.
func (c *Cache[R]) EntrySet() (map[int64]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return nil, err
	}
	return c.store.EntrySet(), nil
}

// Close flushes all dirty entries and drops the in-memory cache.
func (c *Cache[R]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.ll = list.New()
	c.items = make(map[int64]*list.Element)
	return nil
}
