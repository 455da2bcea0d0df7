// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package queue provides a bounded blocking queue.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a fixed-capacity FIFO queue safe for use by multiple
// producers and consumers.
//
// The buffered channel provides both counting semaphores of a ring
// buffer: a send waits for an empty slot, a receive waits for a full one.
type Queue[T any] struct {
	name string
	ch   chan T

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a new queue with name and capacity n.
// It panics if n < 1.
func New[T any](name string, n int) *Queue[T] {
	if n < 1 {
		panic("queue: capacity must be positive")
	}
	return &Queue[T]{
		name: name,
		ch:   make(chan T, n),
		done: make(chan struct{}),
	}
}

// Name returns name of the queue.
func (q *Queue[T]) Name() string {
	return q.name
}

// Capacity returns capacity of the queue.
func (q *Queue[T]) Capacity() int {
	return cap(q.ch)
}

// Len returns number of items currently in the queue.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Put puts v in the queue, blocking until a slot is free.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut puts v in the queue if a slot is free.
// It reports whether v was queued.
func (q *Queue[T]) TryPut(v T) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Get gets an item from the queue, blocking until one is available.
// After Close, Get keeps returning queued items and then
// reports false.
func (q *Queue[T]) Get(ctx context.Context) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	select {
	case v := <-q.ch:
		return v, true
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, true
		default:
		}
	case <-ctx.Done():
	}
	var zero T
	return zero, false
}

// TryGet gets an item from the queue if one is available.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Close closes the queue. Blocked Put calls return ErrClosed,
// blocked Get calls return false once the queue is drained.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
