// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package localexec implements local command execution.
package localexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"go.chromium.org/infra/build/anvil/execute"
)

// LocalExec implements execute.Executor interface that runs commands locally.
type LocalExec struct {
	// OOMScoreAdj is oom_score_adj of the child process, if not zero.
	// Only effective on linux.
	OOMScoreAdj int
}

// Result is a result of local execution.
type Result struct {
	ExitCode int
	Started  time.Time
	Finished time.Time
	Rusage   *Rusage
}

// Rusage is resource usage of the child process.
type Rusage struct {
	MaxRSS int64
	Utime  time.Duration
	Stime  time.Duration
}

// Run runs cmd with LocalExec.
func Run(ctx context.Context, cmd *execute.Cmd) error {
	return LocalExec{}.Run(ctx, cmd)
}

// Run runs a cmd.
func (l LocalExec) Run(ctx context.Context, cmd *execute.Cmd) error {
	res, err := l.run(ctx, cmd)
	if err != nil {
		return err
	}
	cmd.SetExitCode(res.ExitCode)
	if res.Rusage != nil {
		log.Debugf("%s exit=%d %s maxrss=%d utime=%s stime=%s", cmd.ID, res.ExitCode, res.Finished.Sub(res.Started), res.Rusage.MaxRSS, res.Rusage.Utime, res.Rusage.Stime)
	}
	if res.ExitCode != 0 {
		return &execute.ExitError{ExitCode: res.ExitCode}
	}
	return nil
}

// forkSema limits concurrent fork/exec.
var forkSema = semaphore.NewWeighted(int64(runtime.NumCPU()))

func (l LocalExec) run(ctx context.Context, cmd *execute.Cmd) (*Result, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("no arguments in the command. ID: %s", cmd.ID)
	}
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Env = cmd.Environ()
	c.Dir = cmd.Dir
	stdout := cmd.StdoutWriter()
	stderr := cmd.StderrWriter()
	c.Stdout = stdout
	c.Stderr = stderr

	res := &Result{
		Started: time.Now(),
	}
	err := forkSema.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	err = c.Start()
	forkSema.Release(1)
	if err == nil {
		if l.OOMScoreAdj != 0 {
			oomScoreAdj(ctx, c.Process.Pid, l.OOMScoreAdj)
		}
		err = c.Wait()
	}
	res.Finished = time.Now()
	res.ExitCode = exitCode(err)
	if c.ProcessState != nil {
		res.Rusage = rusage(c)
	}
	log.Debugf("%s run %q: %v", cmd.ID, cmd.Args, err)
	if res.ExitCode != 0 {
		fmt.Fprintf(stderr, "\ncmd: %q dir: %q error: %v\n", cmd.Args, cmd.Dir, err)
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var eerr *exec.ExitError
	if !errors.As(err, &eerr) {
		return 1
	}
	if w, ok := eerr.ProcessState.Sys().(syscall.WaitStatus); ok {
		if w.Signaled() {
			return 128 + int(w.Signal())
		}
		return w.ExitStatus()
	}
	return 1
}
