// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package build

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/build/buildfile"
	"go.chromium.org/infra/build/anvil/build/jobgraph"
	"go.chromium.org/infra/build/anvil/execute"
	"go.chromium.org/infra/build/anvil/toolsupport/extractpipe"
)

// replayer replays statements of a project description
// against the scheduler.
type replayer struct {
	graph   *jobgraph.Graph
	sched   *jobgraph.Scheduler
	pipes   *extractpipe.Pool
	exec    execute.Executor
	verbose bool

	// jobs whose saved dependencies are added before the next run,
	// so saved dependencies may refer to jobs declared later.
	saved []*jobgraph.Job
	n     int
}

func (r *replayer) replay(ctx context.Context, stmts []buildfile.Statement) error {
	for _, s := range stmts {
		var err error
		switch s.Kind {
		case buildfile.JobStmt:
			err = r.declare(s.Job)
		case buildfile.RunStmt:
			r.addSavedDepends()
			err = r.sched.RunImmediate(ctx, r.newCmd(fmt.Sprintf("run@%s", s.Pos), s.Args, false, false))
		case buildfile.PhaseStmt:
			err = r.run(ctx)
			if err == nil {
				log.Infof("phase done at %s", s.Pos)
				r.sched.Clear()
			}
		default:
			err = fmt.Errorf("unknown statement %v", s.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s: %s: %w", s.Pos, s.Kind, err)
		}
	}
	return r.run(ctx)
}

func (r *replayer) declare(decl *buildfile.Job) error {
	var op jobgraph.Operation
	if len(decl.Args) == 0 {
		op = jobgraph.Nop{Desc: decl.Name}
	} else {
		op = r.newCmd(decl.Name, decl.Args, decl.Extract, decl.Phony)
	}
	j, err := r.graph.Add(decl.Name, op)
	if err != nil {
		return err
	}
	for _, dep := range decl.Deps {
		err := j.AddDepend(dep)
		if err != nil {
			return err
		}
	}
	if decl.UseSavedep {
		r.saved = append(r.saved, j)
	}
	return nil
}

func (r *replayer) addSavedDepends() {
	for _, j := range r.saved {
		j.AddSavedDepends()
	}
	r.saved = nil
}

func (r *replayer) run(ctx context.Context) error {
	r.addSavedDepends()
	if !r.sched.Pending() {
		return nil
	}
	return r.sched.Run(ctx)
}

func (r *replayer) newCmd(name string, args []string, extract, phony bool) *execute.Cmd {
	r.n++
	cmd := &execute.Cmd{
		ID:        fmt.Sprintf("%d:%s", r.n, name),
		Args:      args,
		Extract:   extract,
		Pipes:     r.pipes,
		AlwaysRun: phony,
		Executor:  r.exec,
	}
	cmd.SetStdoutWriter(os.Stdout)
	cmd.SetStderrWriter(os.Stderr)
	return cmd
}
