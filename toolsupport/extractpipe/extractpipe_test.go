// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package extractpipe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPoolGetPut(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "anvil-dep-")
	defer p.Close()

	a, err := p.Get()
	if err != nil {
		t.Fatalf("p.Get()=%q, %v; want nil error", a, err)
	}
	fi, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Type() != fs.ModeNamedPipe {
		t.Errorf("mode of %s=%v; want named pipe", a, fi.Mode())
	}
	if perm := fi.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("perm of %s=%v; want no group/other access", a, perm)
	}
	if !strings.HasPrefix(a, dir+string(os.PathSeparator)+"anvil-dep-") {
		t.Errorf("p.Get()=%q; want in %s with prefix", a, dir)
	}

	b, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("p.Get() returned %q twice while in use", a)
	}
	p.Put(a)
	c, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Errorf("p.Get()=%q after Put(%q); want reuse", c, a)
	}
	if got := p.Created(); got != 2 {
		t.Errorf("p.Created()=%d; want 2", got)
	}

	if err := p.Close(); err != nil {
		t.Errorf("p.Close()=%v; want nil", err)
	}
	for _, path := range []string{a, b} {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("stat %s after Close=%v; want not exist", path, err)
		}
	}
	if _, err := p.Get(); err == nil {
		t.Errorf("p.Get() after Close succeeded; want error")
	}
}

func TestPoolConcurrent(t *testing.T) {
	p := New(t.TempDir(), "anvil-dep-")
	defer p.Close()
	var wg sync.WaitGroup
	var mu sync.Mutex
	inUse := make(map[string]bool)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				path, err := p.Get()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if inUse[path] {
					t.Errorf("%s handed out twice", path)
				}
				inUse[path] = true
				mu.Unlock()

				mu.Lock()
				delete(inUse, path)
				mu.Unlock()
				p.Put(path)
			}
		}()
	}
	wg.Wait()
	if got := p.Created(); got > 8 {
		t.Errorf("p.Created()=%d; want <= 8", got)
	}
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	p := New(t.TempDir(), "anvil-dep-")
	defer p.Close()
	path, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Put(path)

	rd, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q)=%v", path, err)
	}
	// as a command would do.
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = w.WriteString("out/a.o: a.c \\\n a.h\nout/b.o: b.h\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rd.CloseWrite(); err != nil {
		t.Fatal(err)
	}
	got, err := rd.Deps(ctx)
	if err != nil {
		t.Fatalf("rd.Deps()=%v; want nil", err)
	}
	want := []Pair{
		{From: "out/a.o", To: "a.c"},
		{From: "out/a.o", To: "a.h"},
		{From: "out/b.o", To: "b.h"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rd.Deps() -want +got:\n%s", diff)
	}
}

func TestReaderNoWriter(t *testing.T) {
	ctx := context.Background()
	p := New(t.TempDir(), "anvil-dep-")
	defer p.Close()
	path, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	rd, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	// command exited without writing anything.
	if err := rd.CloseWrite(); err != nil {
		t.Fatal(err)
	}
	got, err := rd.Deps(ctx)
	if err != nil || len(got) != 0 {
		t.Errorf("rd.Deps()=%v, %v; want no pairs, nil", got, err)
	}
}
