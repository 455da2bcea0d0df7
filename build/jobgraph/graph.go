// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/build/savedep"
)

// StatFunc returns modification time of the file name,
// and whether it exists.
type StatFunc func(name string) (time.Time, bool)

// OSStat is a StatFunc on the local filesystem.
func OSStat(name string) (time.Time, bool) {
	fi, err := os.Stat(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("stat %s: %v", name, err)
		}
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Graph is a build graph. It owns all its jobs.
//
// Graph is not safe for concurrent use. Only the goroutine that
// builds the graph and runs the scheduler may touch it.
type Graph struct {
	cache *savedep.Cache
	stat  StatFunc

	jobs       map[string]*Job
	nextSerial int
	counts     [numStates]int
	runnable   runnableHeap

	// onTransition is called for each state change.
	onTransition func(j *Job, from, to State)
}

// NewGraph creates an empty graph.
// cache may be nil. stat defaults to OSStat.
func NewGraph(cache *savedep.Cache, stat StatFunc) *Graph {
	if stat == nil {
		stat = OSStat
	}
	return &Graph{
		cache: cache,
		stat:  stat,
		jobs:  make(map[string]*Job),
	}
}

// Cache returns the dependency cache of the graph.
func (g *Graph) Cache() *savedep.Cache {
	return g.cache
}

// Add registers a job for name with op.
// If name was referenced before, its placeholder gets op and keeps
// its serial. It fails with ErrDuplicateJob if the job already
// has an operation.
func (g *Graph) Add(name string, op Operation) (*Job, error) {
	if op == nil {
		return nil, fmt.Errorf("%s: no operation", name)
	}
	j := g.Job(name)
	if j.op != nil {
		err := fmt.Errorf("%s: %w: %q and %q", name, ErrDuplicateJob, j.op.Describe(), op.Describe())
		log.Errorf("%v", err)
		return j, err
	}
	j.op = op
	return j, nil
}

// Job returns the job for name, creating an Unknown placeholder
// if it doesn't exist.
func (g *Graph) Job(name string) *Job {
	if j, ok := g.jobs[name]; ok {
		return j
	}
	j := &Job{
		graph:  g,
		name:   name,
		serial: g.nextSerial,
		state:  Unknown,
	}
	g.nextSerial++
	g.jobs[name] = j
	g.counts[Unknown]++
	return j
}

// Lookup returns the job for name if it exists.
func (g *Graph) Lookup(name string) (*Job, bool) {
	j, ok := g.jobs[name]
	return j, ok
}

// Len returns number of jobs.
func (g *Graph) Len() int {
	return len(g.jobs)
}

// Count returns number of jobs in state s.
func (g *Graph) Count(s State) int {
	return g.counts[s]
}

// Jobs returns all jobs in creation order.
func (g *Graph) Jobs() []*Job {
	jobs := make([]*Job, 0, len(g.jobs))
	for _, j := range g.jobs {
		jobs = append(jobs, j)
	}
	slices.SortFunc(jobs, func(a, b *Job) int {
		return a.serial - b.serial
	})
	return jobs
}

// Pending reports whether some jobs are not finished yet.
func (g *Graph) Pending() bool {
	return g.counts[Unknown]+g.counts[Runnable]+g.counts[Running] > 0
}

// Clear discards all jobs.
// Serials keep increasing so that jobs created later run later.
func (g *Graph) Clear() {
	g.jobs = make(map[string]*Job)
	g.counts = [numStates]int{}
	g.runnable = nil
}

func (g *Graph) setState(j *Job, s State) {
	if j.state == s {
		return
	}
	from := j.state
	g.counts[from]--
	g.counts[s]++
	j.state = s
	if s == Runnable {
		heap.Push(&g.runnable, j)
	}
	log.Debugf("%s: %s -> %s", j.name, from, s)
	if g.onTransition != nil {
		g.onTransition(j, from, s)
	}
}

// nextRunnable returns the runnable job with the lowest serial, or nil.
func (g *Graph) nextRunnable() *Job {
	for g.runnable.Len() > 0 {
		j := heap.Pop(&g.runnable).(*Job)
		if j.state == Runnable {
			return j
		}
	}
	return nil
}

// initialize recomputes all jobs in creation order.
func (g *Graph) initialize(ctx context.Context) {
	for _, j := range g.Jobs() {
		g.recompute(ctx, j)
	}
}

// recompute evaluates state of j from states of its dependencies,
// and propagates to the jobs depending on j when j is done.
func (g *Graph) recompute(ctx context.Context, j *Job) {
	switch j.state {
	case Running, UpToDate, Failed:
		return
	}
	ready := true
	for _, d := range j.down {
		switch d.state {
		case UpToDate:
		case Failed:
			j.err = fmt.Errorf("%s: dependency %s failed", j.name, d.name)
			j.depFailed = true
			g.setState(j, Failed)
			g.propagate(ctx, j)
			return
		default:
			ready = false
		}
	}
	if !ready {
		return
	}
	s := g.evaluate(j)
	if s == j.state {
		return
	}
	g.setState(j, s)
	if s.Done() {
		g.propagate(ctx, j)
	}
}

// evaluate returns state of j whose dependencies are all up to date.
func (g *Graph) evaluate(j *Job) State {
	mtime, exists := g.stat(j.name)
	if j.op == nil {
		if exists {
			return UpToDate
		}
		err := MissingSourceError{Target: j.name}
		if len(j.up) > 0 {
			err.NeededBy = j.up[0].name
		}
		j.err = err
		log.Errorf("%v", err)
		return Failed
	}
	if !exists || j.dirty || isPhony(j.op) {
		return Runnable
	}
	for _, d := range j.down {
		if d.built {
			return Runnable
		}
		dmtime, ok := g.stat(d.name)
		if ok && dmtime.After(mtime) {
			log.Debugf("%s: %s is newer", j.name, d.name)
			return Runnable
		}
	}
	return UpToDate
}

// propagate recomputes jobs that depend on j.
func (g *Graph) propagate(ctx context.Context, j *Job) {
	for _, u := range j.up {
		g.recompute(ctx, u)
	}
}

// reaches reports whether to is reachable from from via dependencies.
func (g *Graph) reaches(from, to *Job) bool {
	visited := make(map[*Job]bool)
	stack := []*Job{from}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if j == to {
			return true
		}
		if visited[j] {
			continue
		}
		visited[j] = true
		stack = append(stack, j.down...)
	}
	return false
}

// checkCycles returns CycleError if the graph has a dependency cycle.
func (g *Graph) checkCycles() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[*Job]int, len(g.jobs))
	type frame struct {
		job  *Job
		next int
	}
	for _, root := range g.Jobs() {
		if color[root] != white {
			continue
		}
		stack := []frame{{job: root}}
		color[root] = gray
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next == len(f.job.down) {
				color[f.job] = black
				stack = stack[:len(stack)-1]
				continue
			}
			d := f.job.down[f.next]
			f.next++
			switch color[d] {
			case white:
				color[d] = gray
				stack = append(stack, frame{job: d})
			case gray:
				var cycle []string
				for i := range stack {
					if stack[i].job == d {
						for _, fr := range stack[i:] {
							cycle = append(cycle, fr.job.name)
						}
						break
					}
				}
				cycle = append(cycle, d.name)
				return CycleError{Cycle: cycle}
			}
		}
	}
	return nil
}

// runnableHeap is a min-heap of jobs ordered by serial.
type runnableHeap []*Job

func (h runnableHeap) Len() int           { return len(h) }
func (h runnableHeap) Less(i, j int) bool { return h[i].serial < h[j].serial }
func (h runnableHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *runnableHeap) Push(x any) {
	*h = append(*h, x.(*Job))
}
func (h *runnableHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}
