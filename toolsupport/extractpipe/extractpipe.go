// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

// Package extractpipe manages named pipes that build commands write
// discovered dependencies into while they run.
package extractpipe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"go.chromium.org/infra/build/anvil/toolsupport/makeutil"
)

// EnvName is the name of environment variable that tells a command
// which pipe to write its dependency report to.
const EnvName = "ANVIL_DEPFILE"

// Pool is a pool of named pipes.
type Pool struct {
	dir    string
	prefix string

	mu      sync.Mutex
	free    []string
	all     map[string]bool
	closed  bool
	created int
}

// New creates a pool of pipes created in dir (os.TempDir if empty)
// with the name prefix.
func New(dir, prefix string) *Pool {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Pool{
		dir:    dir,
		prefix: prefix,
		all:    make(map[string]bool),
	}
}

// Get returns a path of an available pipe, creating a new one
// if none is available.
func (p *Pool) Get() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", errors.New("extractpipe: pool closed")
	}
	if n := len(p.free); n > 0 {
		path := p.free[n-1]
		p.free = p.free[:n-1]
		return path, nil
	}
	path := filepath.Join(p.dir, p.prefix+uuid.New().String())
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("extractpipe: %w", err)
	}
	err = unix.Mkfifo(path, 0600)
	if err != nil {
		return "", fmt.Errorf("extractpipe: mkfifo %s: %w", path, err)
	}
	p.all[path] = true
	p.created++
	log.Debugf("extractpipe: created %s", path)
	return path, nil
}

// Put returns the pipe to the pool.
func (p *Pool) Put(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.all[path] {
		log.Warnf("extractpipe: put unknown pipe %s", path)
		return
	}
	if p.closed {
		return
	}
	p.free = append(p.free, path)
}

// Created returns number of pipes created by the pool.
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Close unlinks all pipes created by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for path := range p.all {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	p.free = nil
	return errors.Join(errs...)
}

// Pair is a dependency reported through a pipe.
type Pair struct {
	From, To string
}

// Reader reads a dependency report from a pipe.
//
// Open it before the command starts, and call CloseWrite after the
// command exits. The reader holds its own write end so that it does
// not see end of file before the command opens the pipe.
type Reader struct {
	path string
	r    *os.File
	w    *os.File

	done  chan struct{}
	pairs []Pair
	err   error
}

// Open opens the pipe at path and starts reading it.
func Open(path string) (*Reader, error) {
	r, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	w, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		r.Close()
		return nil, err
	}
	rd := &Reader{
		path: path,
		r:    r,
		w:    w,
		done: make(chan struct{}),
	}
	go func() {
		defer close(rd.done)
		rd.err = makeutil.Parse(r, func(from, to string) {
			rd.pairs = append(rd.pairs, Pair{From: from, To: to})
		})
	}()
	return rd, nil
}

// CloseWrite closes the reader's write end.
// The reader sees end of file once the command closed the pipe too.
func (rd *Reader) CloseWrite() error {
	return rd.w.Close()
}

// Deps waits for the end of the report and returns reported pairs.
func (rd *Reader) Deps(ctx context.Context) ([]Pair, error) {
	select {
	case <-rd.done:
	case <-ctx.Done():
		// unblock the parser.
		rd.r.Close()
		<-rd.done
		return nil, ctx.Err()
	}
	err := rd.r.Close()
	if rd.err != nil {
		return rd.pairs, fmt.Errorf("read %s: %w", rd.path, rd.err)
	}
	return rd.pairs, err
}
