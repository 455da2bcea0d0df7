// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/build/savedep"
)

// Operation is a unit of work of a job.
type Operation interface {
	// Execute runs the operation and reports whether it succeeded.
	Execute(ctx context.Context) bool

	// Describe returns a short description shown to the user.
	Describe() string

	// ExtractedDependencies returns dependencies discovered by
	// the last Execute. It may be empty.
	ExtractedDependencies() []string
}

// phony is implemented by operations without an output file.
type phony interface {
	Phony() bool
}

func isPhony(op Operation) bool {
	p, ok := op.(phony)
	return ok && p.Phony()
}

// Job is a node in the build graph.
type Job struct {
	graph  *Graph
	name   string
	serial int
	state  State
	op     Operation

	// up are jobs that depend on this job.
	up []*Job
	// down are jobs this job depends on.
	down    []*Job
	downSet map[*Job]bool

	// result of the last execution.
	result bool
	// built is true if the job ran successfully in this run.
	built bool
	// dirty is true if a saved dependency disappeared.
	dirty bool
	// err is the reason why the job failed.
	err error
	// depFailed is true if the job failed because of a dependency.
	depFailed bool
}

// Name returns name of the job.
func (j *Job) Name() string { return j.name }

// Serial returns creation order of the job.
func (j *Job) Serial() int { return j.serial }

// State returns current state of the job.
func (j *Job) State() State { return j.state }

// Operation returns operation of the job, or nil.
func (j *Job) Operation() Operation { return j.op }

// Result returns result of the last execution.
func (j *Job) Result() bool { return j.result }

// Err returns why the job failed.
func (j *Job) Err() error { return j.err }

// Dirty reports whether a saved dependency of the job disappeared.
func (j *Job) Dirty() bool { return j.dirty }

func (j *Job) String() string {
	return fmt.Sprintf("%s#%d[%s]", j.name, j.serial, j.state)
}

// DependsDown returns names of jobs this job depends on.
func (j *Job) DependsDown() []string {
	names := make([]string, 0, len(j.down))
	for _, d := range j.down {
		names = append(names, d.name)
	}
	return names
}

// DependsUp returns names of jobs that depend on this job.
func (j *Job) DependsUp() []string {
	names := make([]string, 0, len(j.up))
	for _, u := range j.up {
		names = append(names, u.name)
	}
	return names
}

// AddDepend adds a dependency on the job name,
// creating a placeholder job if name is not known yet.
func (j *Job) AddDepend(name string) error {
	if name == j.name {
		return fmt.Errorf("%s: %w", name, ErrSelfDependency)
	}
	d := j.graph.Job(name)
	j.addDepend(d)
	return nil
}

func (j *Job) addDepend(d *Job) {
	if j.downSet[d] {
		return
	}
	if j.downSet == nil {
		j.downSet = make(map[*Job]bool)
	}
	j.downSet[d] = true
	j.down = append(j.down, d)
	d.up = append(d.up, j)
}

// AddSavedDepends adds dependencies recorded in the dependency cache.
//
// A recorded dependency that is neither a known job nor an existing
// file marks the job dirty instead, so it runs again and reports
// its current dependencies. Recorded dependencies that would make
// a cycle are ignored.
func (j *Job) AddSavedDepends() {
	c := j.graph.cache
	if c == nil {
		return
	}
	c.FromApply(j.name, func(from, to string, q savedep.Quality) {
		d, ok := j.graph.Lookup(to)
		if !ok {
			if _, exists := j.graph.stat(to); !exists {
				log.Infof("%s: saved dependency %s is gone", j.name, to)
				j.dirty = true
				return
			}
			d = j.graph.Job(to)
		}
		if d == j || j.graph.reaches(d, j) {
			log.Warnf("%s: ignore saved dependency %s: cycle", j.name, to)
			return
		}
		j.addDepend(d)
	})
}
