// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package savedep provides a persistent dependency cache.
//
// The cache records (from, to) dependency edges with a quality that ranks
// how authoritative an edge is. It is loaded at the start of a build,
// updated with dependencies extracted from commands, and saved at the end
// so the next build knows about them.
package savedep

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/toolsupport/makeutil"
)

// Quality is a rank of a dependency edge.
type Quality int

const (
	None Quality = iota
	// Implicit is a dependency inferred by a rule.
	Implicit
	// Loaded is a dependency loaded from the saved cache file.
	Loaded
	// Extracted is a dependency reported by a command in this build.
	Extracted
	// Explicit is a dependency declared in the project description.
	Explicit
)

func (q Quality) String() string {
	switch q {
	case None:
		return "none"
	case Implicit:
		return "implicit"
	case Loaded:
		return "loaded"
	case Extracted:
		return "extracted"
	case Explicit:
		return "explicit"
	default:
		return fmt.Sprintf("quality=%d", int(q))
	}
}

// persistent reports whether edges of the quality are saved.
func (q Quality) persistent() bool {
	return q == Loaded || q == Extracted
}

// Cache is a dependency cache.
// It is safe for concurrent use.
type Cache struct {
	fname string

	mu    sync.Mutex
	edges map[string]map[string]Quality
}

// New creates an empty cache that will be saved in fname.
// fname may be empty for a cache that is never saved.
func New(fname string) *Cache {
	return &Cache{
		fname: fname,
		edges: make(map[string]map[string]Quality),
	}
}

// Load creates a cache from fname.
// A missing file gives an empty cache. Other errors are logged and
// also give what could be loaded, since the cache only helps to
// skip work.
func Load(ctx context.Context, fname string) *Cache {
	c := New(fname)
	f, err := os.Open(fname)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("savedep %s: not found", fname)
		return c
	}
	if err != nil {
		log.Warnf("savedep %s: %v", fname, err)
		return c
	}
	defer f.Close()
	err = c.LoadFrom(f)
	if err != nil {
		log.Warnf("savedep %s: %v", fname, err)
	}
	log.Infof("savedep %s: loaded %d edges", fname, c.Len())
	return c
}

// Filename returns filename of the cache.
func (c *Cache) Filename() string {
	return c.fname
}

// LoadFrom reads dependency records from r as Loaded edges.
func (c *Cache) LoadFrom(r io.Reader) error {
	return makeutil.Parse(r, func(from, to string) {
		c.Add(from, to, Loaded)
	})
}

// Add adds an edge from -> to with quality q.
// It keeps the higher quality if the edge is already known.
func (c *Cache) Add(from, to string, q Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(from, to, q)
}

// AddList adds edges from -> tos with quality q.
func (c *Cache) AddList(from string, tos []string, q Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, to := range tos {
		c.addLocked(from, to, q)
	}
}

// Replace replaces persistent edges from from with edges from -> tos
// of quality q. Edges of other qualities are kept.
// It is used when a job reports its complete dependencies, so edges
// it no longer reports are forgotten.
func (c *Cache) Replace(from string, tos []string, q Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.edges[from]
	for to, old := range m {
		if old.persistent() {
			delete(m, to)
		}
	}
	for _, to := range tos {
		c.addLocked(from, to, q)
	}
	if m, ok := c.edges[from]; ok && len(m) == 0 {
		delete(c.edges, from)
	}
}

func (c *Cache) addLocked(from, to string, q Quality) {
	if from == "" || to == "" || from == to {
		return
	}
	if !valid(from) || !valid(to) {
		log.Warnf("savedep: ignore %q -> %q: name can't be saved", from, to)
		return
	}
	m, ok := c.edges[from]
	if !ok {
		m = make(map[string]Quality)
		c.edges[from] = m
	}
	if old, ok := m[to]; !ok || q > old {
		m[to] = q
	}
}

// Quality returns quality of edge from -> to, or None if unknown.
func (c *Cache) Quality(from, to string) Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edges[from][to]
}

// Len returns number of edges in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.edges {
		n += len(m)
	}
	return n
}

// Edge is a dependency edge.
type Edge struct {
	From, To string
	Quality  Quality
}

// Apply calls fn for each edge, ordered by from and to.
// fn must not modify the cache.
func (c *Cache) Apply(fn func(from, to string, q Quality)) {
	for _, e := range c.snapshot("") {
		fn(e.From, e.To, e.Quality)
	}
}

// FromApply calls fn for each edge from, ordered by to.
// fn may add edges to the cache.
func (c *Cache) FromApply(from string, fn func(from, to string, q Quality)) {
	for _, e := range c.snapshot(from) {
		fn(e.From, e.To, e.Quality)
	}
}

// snapshot returns sorted edges, from the node if from is not empty.
func (c *Cache) snapshot(from string) []Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	var froms []string
	if from != "" {
		if _, ok := c.edges[from]; ok {
			froms = []string{from}
		}
	} else {
		froms = make([]string, 0, len(c.edges))
		for f := range c.edges {
			froms = append(froms, f)
		}
		sort.Strings(froms)
	}
	var edges []Edge
	for _, f := range froms {
		m := c.edges[f]
		tos := make([]string, 0, len(m))
		for to := range m {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			edges = append(edges, Edge{From: f, To: to, Quality: m[to]})
		}
	}
	return edges
}

// WriteTo writes persistent edges (Loaded and Extracted) to w,
// one record per from.
func (c *Cache) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	var cur string
	write := func(s string) error {
		m, err := bw.WriteString(s)
		n += int64(m)
		return err
	}
	for _, e := range c.snapshot("") {
		if !e.Quality.persistent() {
			continue
		}
		var err error
		if e.From != cur {
			if cur != "" {
				err = write("\n")
			}
			if err == nil {
				err = write(escape(e.From) + ":")
			}
			cur = e.From
		}
		if err == nil {
			err = write(" " + escape(e.To))
		}
		if err != nil {
			return n, err
		}
	}
	if cur != "" {
		if err := write("\n"); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// Save saves the cache in its file.
// The previous file is kept as <fname>.bak.
func (c *Cache) Save(ctx context.Context) error {
	if c.fname == "" {
		return nil
	}
	if dir := filepath.Dir(c.fname); dir != "." {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}
	err := os.Rename(c.fname, c.fname+".bak")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("savedep backup %s: %v", c.fname, err)
	}
	f, err := os.Create(c.fname)
	if err != nil {
		return fmt.Errorf("savedep %s: %w", c.fname, err)
	}
	_, err = c.WriteTo(f)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("savedep %s: %w", c.fname, err)
	}
	log.Infof("savedep %s: saved", c.fname)
	return nil
}

var escaper = strings.NewReplacer(" ", `\ `, "\t", "\\\t")

func escape(s string) string {
	return escaper.Replace(s)
}

// valid reports whether name can be written in the dependency file format.
// A line break ends a record, and a trailing '\' would escape the
// separator that follows it.
func valid(name string) bool {
	return !strings.ContainsAny(name, "\r\n") && !strings.HasSuffix(name, `\`)
}
