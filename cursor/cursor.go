// Package cursor provides the pull-based, lazy iteration capability shared
// by every xsweep component: storage, queues, the external sorter, the
// replicator and the sweep-area joins. A cursor moves through exactly one
// of the states fresh -> opened -> closed, per SPEC_FULL.md C1.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cursor

import "github.com/NVIDIA/xsweep/cmn"

type state int

const (
	stateFresh state = iota
	stateOpened
	stateClosed
)

// Cursor is the capability every xsweep iteration primitive implements.
// Calls must be ordered Open -> (HasNext|Peek|Next)* -> Close. Peek is
// idempotent with respect to Next: after Peek, the next Next call returns
// the same element. Remove/Update target the element last returned by Next
// (or by Peek if immediately followed by Remove); no HasNext/Peek may
// intervene between Next and its matching Remove.
type Cursor[T any] interface {
	Open() error
	Close() error
	HasNext() bool
	Next() (T, error)
	Peek() (T, error)
	Reset() error
	Remove() error
	Update(v T) error

	SupportsReset() bool
	SupportsRemove() bool
	SupportsUpdate() bool
}

// Base implements the bookkeeping (state machine + peek/next tracking)
// shared by every Cursor implementation in this module. Embedders provide
// fetch (pull the next element or io.EOF-like "ok=false") and, optionally,
// override the optional operations.
type Base[T any] struct {
	st        state
	peeked    bool
	peekVal   T
	peekErr   error
	lastCall  string // "next" or "peek", for Remove/Update ordering checks
	hasRemove bool
}

func (b *Base[T]) op(name string) string { return "cursor." + name }

func (b *Base[T]) openCheck(name string) error {
	if b.st != stateOpened {
		return cmn.NewIterationStateError(b.op(name), "cursor is not open")
	}
	return nil
}

// OpenBase transitions fresh -> opened. Call from the embedder's Open.
func (b *Base[T]) OpenBase() error {
	if b.st != stateFresh {
		return cmn.NewIterationStateError(b.op("Open"), "cursor already opened or closed")
	}
	b.st = stateOpened
	return nil
}

// CloseBase transitions to closed; idempotent per SPEC_FULL.md/§5.
func (b *Base[T]) CloseBase() {
	b.st = stateClosed
	b.peeked = false
}

func (b *Base[T]) Closed() bool { return b.st == stateClosed }

// PeekFrom returns the cached peek if present, otherwise pulls via fetch and
// caches the result so a following Next returns the same element.
func (b *Base[T]) PeekFrom(fetch func() (T, bool, error)) (T, error) {
	var zero T
	if err := b.openCheck("Peek"); err != nil {
		return zero, err
	}
	if !b.peeked {
		v, ok, err := fetch()
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, cmn.NewNotFoundError(b.op("Peek"), "no more elements")
		}
		b.peekVal, b.peekErr, b.peeked = v, nil, true
	}
	b.lastCall = "peek"
	return b.peekVal, b.peekErr
}

// HasNextFrom reports whether a following Next would succeed, without
// advancing past a cached peek.
func (b *Base[T]) HasNextFrom(fetch func() (T, bool, error)) bool {
	if b.st != stateOpened {
		return false
	}
	b.lastCall = ""
	if b.peeked {
		return true
	}
	v, ok, err := fetch()
	if !ok || err != nil {
		return false
	}
	b.peekVal, b.peekErr, b.peeked = v, nil, true
	return true
}

// NextFrom consumes a cached peek if present, otherwise pulls directly.
func (b *Base[T]) NextFrom(fetch func() (T, bool, error)) (T, error) {
	var zero T
	if err := b.openCheck("Next"); err != nil {
		return zero, err
	}
	if b.peeked {
		b.peeked = false
		b.lastCall = "next"
		return b.peekVal, b.peekErr
	}
	v, ok, err := fetch()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, cmn.NewNotFoundError(b.op("Next"), "no more elements")
	}
	b.lastCall = "next"
	return v, nil
}

// RemoveCheck validates ordering for Remove/Update: must directly follow
// Next or a Peek not yet consumed by Next.
func (b *Base[T]) RemoveCheck(name string) error {
	if err := b.openCheck(name); err != nil {
		return err
	}
	if b.lastCall == "" {
		return cmn.NewIterationStateError(b.op(name), "no element to "+name)
	}
	return nil
}

// Unsupported returns the standard capability-missing error for an optional
// operation an embedder chooses not to implement.
func Unsupported(op string) error {
	return cmn.NewCapabilityMissingError(op, "operation not supported by this cursor")
}
