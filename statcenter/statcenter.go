// Package statcenter is the optional statistics side channel named in
// spec.md §6 and §9 ("the only permitted global mutable state is the
// optional statistic center"): every package that accepts a
// statcenter.Center runs identically when handed statcenter.Noop(), and a
// caller who wants counters persisted across process restarts can supply
// statcenter.NewBunt instead.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package statcenter

import (
	"sync"

	"go.uber.org/atomic"
)

// Counter is a single named, monotonically-adjustable statistic.
type Counter interface {
	Inc(n int64)
	Value() int64
}

// Center hands out Counters by name. Implementations must be safe to share
// across goroutines and across the packages that hold a reference to one.
type Center interface {
	GetCounter(name string) Counter
	Snapshot() map[string]int64
}

type memCounter struct{ v atomic.Int64 }

func (c *memCounter) Inc(n int64)    { c.v.Add(n) }
func (c *memCounter) Value() int64   { return c.v.Load() }

type noop struct{}

func (noop) GetCounter(string) Counter      { return noopCounter{} }
func (noop) Snapshot() map[string]int64     { return nil }

type noopCounter struct{}

func (noopCounter) Inc(int64)    {}
func (noopCounter) Value() int64 { return 0 }

// Noop returns a Center whose counters discard every increment - the
// default every package in this module falls back to when no Center is
// supplied.
func Noop() Center { return noop{} }

// memory is an in-process, non-persistent Center.
type memory struct {
	mu       sync.RWMutex
	counters map[string]*memCounter
}

// NewMemory returns an in-memory Center, useful for tests and for short-lived
// batch jobs that don't need counters to survive a restart.
func NewMemory() Center {
	return &memory{counters: make(map[string]*memCounter)}
}

func (m *memory) GetCounter(name string) Counter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; ok {
		return c
	}
	c = &memCounter{}
	m.counters[name] = c
	return c
}

func (m *memory) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v.Value()
	}
	return out
}
