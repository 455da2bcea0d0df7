// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := New[int]("test", 3)
	for i := 1; i <= 3; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("q.Put(ctx, %d)=%v; want nil", i, err)
		}
	}
	if q.TryPut(4) {
		t.Errorf("q.TryPut(4)=true on full queue; want false")
	}
	var got []int
	for {
		v, ok := q.TryGet()
		if !ok {
			break
		}
		got = append(got, v)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("queue order diff -want +got:\n%s", diff)
	}
}

func TestQueuePutBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	q := New[string]("test", 1)
	if err := q.Put(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := q.Put(cctx, "b")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("q.Put on full queue=%v; want %v", err, context.DeadlineExceeded)
	}

	done := make(chan error)
	go func() {
		done <- q.Put(ctx, "c")
	}()
	v, ok := q.Get(ctx)
	if !ok || v != "a" {
		t.Errorf("q.Get()=%q, %t; want %q, true", v, ok, "a")
	}
	if err := <-done; err != nil {
		t.Errorf("q.Put after Get=%v; want nil", err)
	}
	v, ok = q.Get(ctx)
	if !ok || v != "c" {
		t.Errorf("q.Get()=%q, %t; want %q, true", v, ok, "c")
	}
}

func TestQueueClose(t *testing.T) {
	ctx := context.Background()
	q := New[int]("test", 2)
	if err := q.Put(ctx, 1); err != nil {
		t.Fatal(err)
	}
	q.Close()
	q.Close()
	if err := q.Put(ctx, 2); !errors.Is(err, ErrClosed) {
		t.Errorf("q.Put after Close=%v; want %v", err, ErrClosed)
	}
	v, ok := q.Get(ctx)
	if !ok || v != 1 {
		t.Errorf("q.Get()=%d, %t; want 1, true", v, ok)
	}
	_, ok = q.Get(ctx)
	if ok {
		t.Errorf("q.Get() on closed empty queue ok=true; want false")
	}
}

func TestQueueConcurrent(t *testing.T) {
	ctx := context.Background()
	const n = 1000
	q := New[int]("test", 4)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := p; i < n; i += 4 {
				if err := q.Put(ctx, i); err != nil {
					t.Errorf("q.Put(ctx, %d)=%v", i, err)
					return
				}
			}
		}(p)
	}
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		v, ok := q.Get(ctx)
		if !ok {
			t.Fatalf("q.Get()=_, false at %d", i)
		}
		if seen[v] {
			t.Errorf("item %d received twice", v)
		}
		seen[v] = true
	}
	wg.Wait()
	if q.Len() != 0 {
		t.Errorf("q.Len()=%d; want 0", q.Len())
	}
}
