// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package jobgraph provides a build graph of jobs and a scheduler
// that runs jobs in dependency order, skipping jobs that are up to date.
package jobgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/build/savedep"
	"go.chromium.org/infra/build/anvil/sync/queue"
)

// Options is scheduler options.
type Options struct {
	// Workers is number of concurrent workers.
	// 0 or 1 selects the scalar strategy: jobs run one at a time in
	// the goroutine calling Run, and no worker goroutine is started.
	Workers int

	// Metrics records scheduler metrics, if not nil.
	Metrics *Metrics

	// DryRun doesn't run operations but treats them as succeeded.
	DryRun bool

	// Started is called when a job is dispatched.
	// It is called in the orchestrator goroutine.
	Started func(j *Job)

	// Finished is called when a job finished running and its
	// result was propagated.
	// It is called in the orchestrator goroutine.
	Finished func(j *Job, d time.Duration)
}

// Scheduler runs jobs of a graph.
//
// Only the goroutine calling Run mutates the graph. Workers run
// operations and report results through the finish queue.
type Scheduler struct {
	graph *Graph
	opts  Options
	stats Stats
	// cleared is number of jobs discarded by Clear.
	cleared int

	failed bool

	workers  int
	startQ   *queue.Queue[task]
	finishQ  *queue.Queue[finished]
	workerWG sync.WaitGroup
}

type task struct {
	ctx context.Context
	job *Job
}

type finished struct {
	job *Job
	ok  bool
	dur time.Duration
}

// New creates a scheduler for graph.
func New(graph *Graph, opts Options) *Scheduler {
	s := &Scheduler{
		graph: graph,
		opts:  opts,
	}
	graph.onTransition = s.transition
	s.Init(opts.Workers)
	return s
}

// Graph returns the graph of the scheduler.
func (s *Scheduler) Graph() *Graph {
	return s.graph
}

// Init sets number of workers.
// n <= 1 selects the scalar strategy that runs jobs in the
// orchestrator. Otherwise, n long-lived workers run jobs concurrently.
// It must not be called while Run is in progress.
func (s *Scheduler) Init(n int) {
	s.Close()
	s.workers = n
	if n <= 1 {
		return
	}
	// start queue holds one job, so the orchestrator decides
	// which job to dispatch as late as possible.
	s.startQ = queue.New[task]("start", 1)
	// each worker has at most one job, and one more may be in startQ.
	s.finishQ = queue.New[finished]("finish", n+2)
	for i := 0; i < n; i++ {
		s.workerWG.Add(1)
		go s.worker(i)
	}
	log.Debugf("scheduler: %d workers", n)
}

// Close stops workers.
func (s *Scheduler) Close() {
	if s.startQ == nil {
		return
	}
	s.startQ.Close()
	s.workerWG.Wait()
	s.startQ = nil
	s.finishQ = nil
}

// Stats returns statistics of jobs processed by the scheduler.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Total = s.cleared + s.graph.Len()
	return st
}

// Pending reports whether some jobs are not finished yet.
func (s *Scheduler) Pending() bool {
	return s.graph.Pending()
}

// Clear discards the graph's jobs, so that names can be reused
// by later jobs. It must be called after Run returns.
func (s *Scheduler) Clear() {
	s.cleared += s.graph.Len()
	s.graph.Clear()
	s.failed = false
}

func (s *Scheduler) transition(j *Job, from, to State) {
	s.stats.update(j, to)
	s.opts.Metrics.transition(from, to)
	if to == Failed && !j.depFailed {
		s.failed = true
	}
}

// Run runs all pending jobs.
// It returns a *BuildError if some jobs failed, CycleError if the
// graph has a dependency cycle, or the context error if the context
// was canceled. Jobs already running are waited for in any case.
func (s *Scheduler) Run(ctx context.Context) error {
	err := s.graph.checkCycles()
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	s.graph.initialize(ctx)
	log.Infof("run: jobs=%d runnable=%d uptodate=%d failed=%d workers=%d", s.graph.Len(), s.graph.Count(Runnable), s.graph.Count(UpToDate), s.graph.Count(Failed), s.workers)
	if s.startQ == nil {
		s.runScalar(ctx)
	} else {
		s.runConcurrent(ctx)
	}
	return s.result(ctx)
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	return s.failed || ctx.Err() != nil
}

func (s *Scheduler) runScalar(ctx context.Context) {
	for !s.stopped(ctx) {
		j := s.graph.nextRunnable()
		if j == nil {
			return
		}
		s.dispatch(j)
		ok, dur := s.execute(ctx, j)
		s.finish(ctx, finished{job: j, ok: ok, dur: dur})
	}
}

func (s *Scheduler) runConcurrent(ctx context.Context) {
	for {
		// finished jobs may make other jobs runnable.
		for {
			f, ok := s.finishQ.TryGet()
			if !ok {
				break
			}
			s.finish(ctx, f)
		}
		if !s.stopped(ctx) {
			if j := s.graph.nextRunnable(); j != nil {
				s.dispatch(j)
				err := s.startQ.Put(ctx, task{ctx: ctx, job: j})
				if err != nil {
					// not dispatched. canceled.
					log.Warnf("%s: not dispatched: %v", j.name, err)
					s.graph.setState(j, Runnable)
				}
				continue
			}
		}
		if s.graph.Count(Running) == 0 {
			return
		}
		f, ok := s.finishQ.Get(context.Background())
		if !ok {
			log.Errorf("finish queue closed with %d running jobs", s.graph.Count(Running))
			return
		}
		s.finish(ctx, f)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.workerWG.Done()
	for {
		t, ok := s.startQ.Get(context.Background())
		if !ok {
			return
		}
		ok, dur := s.execute(t.ctx, t.job)
		err := s.finishQ.Put(context.Background(), finished{job: t.job, ok: ok, dur: dur})
		if err != nil {
			log.Errorf("worker %d: %s: %v", id, t.job.name, err)
		}
	}
}

func (s *Scheduler) dispatch(j *Job) {
	s.graph.setState(j, Running)
	if s.opts.Started != nil {
		s.opts.Started(j)
	}
}

// execute runs the job's operation. It must not touch the graph.
func (s *Scheduler) execute(ctx context.Context, j *Job) (bool, time.Duration) {
	started := time.Now()
	if s.opts.DryRun {
		return true, 0
	}
	ok := j.op.Execute(ctx)
	return ok, time.Since(started)
}

// finish records the result of j, and propagates it.
func (s *Scheduler) finish(ctx context.Context, f finished) {
	j := f.job
	j.result = f.ok
	s.opts.Metrics.executed(f.dur, f.ok)
	if f.ok {
		j.built = true
		if s.graph.cache != nil && !s.opts.DryRun {
			// the run reports the job's complete dependencies, so
			// saved ones it no longer reports are dropped.
			deps := j.op.ExtractedDependencies()
			s.graph.cache.Replace(j.name, deps, savedep.Extracted)
			if len(deps) > 0 {
				s.opts.Metrics.extractedDeps(len(deps))
			}
		}
		s.graph.setState(j, UpToDate)
	} else {
		j.err = fmt.Errorf("%s: %s failed", j.name, j.op.Describe())
		s.graph.setState(j, Failed)
	}
	s.graph.propagate(ctx, j)
	if s.opts.Finished != nil {
		s.opts.Finished(j, f.dur)
	}
}

func (s *Scheduler) result(ctx context.Context) error {
	var failed []string
	var cause error
	for _, j := range s.graph.Jobs() {
		if j.state != Failed || j.depFailed {
			continue
		}
		failed = append(failed, j.name)
		if cause == nil {
			cause = j.err
		}
	}
	if len(failed) > 0 {
		return &BuildError{Failed: failed, Cause: cause}
	}
	if err := ctx.Err(); err != nil && s.graph.Pending() {
		return fmt.Errorf("run canceled: %w", err)
	}
	if n := s.graph.Count(Unknown) + s.graph.Count(Runnable); n > 0 {
		return fmt.Errorf("%d jobs stalled", n)
	}
	return nil
}

// RunImmediate runs all pending jobs, then runs op outside the graph.
// It is used for operations whose dependencies can't be known.
func (s *Scheduler) RunImmediate(ctx context.Context, op Operation) error {
	if s.Pending() {
		err := s.Run(ctx)
		if err != nil {
			return err
		}
	}
	if s.failed {
		return &BuildError{Cause: errors.New("previous jobs failed")}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Infof("run immediate: %s", op.Describe())
	ok, dur := true, time.Duration(0)
	if !s.opts.DryRun {
		started := time.Now()
		ok = op.Execute(ctx)
		dur = time.Since(started)
	}
	s.opts.Metrics.executed(dur, ok)
	if !ok {
		return &BuildError{Cause: fmt.Errorf("%s failed", op.Describe())}
	}
	return nil
}
