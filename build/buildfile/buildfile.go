// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package buildfile loads a project description written in Starlark.
//
// A project description declares jobs in order:
//
//	job(name, cmd=None, deps=[], extract=False, phony=False, use_savedep=True)
//	run(cmd)
//	phase()
//
// job declares a job that runs cmd to make name. run runs cmd after
// all jobs declared so far finished. phase finishes all jobs declared
// so far and forgets them, so later jobs may reuse their names.
// cmd is either a shell command line string or a list of arguments.
package buildfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"go.starlark.net/starlark"
)

// Kind is a kind of statement.
type Kind int

const (
	// JobStmt declares a job.
	JobStmt Kind = iota
	// RunStmt runs a command immediately.
	RunStmt
	// PhaseStmt ends a phase.
	PhaseStmt
)

func (k Kind) String() string {
	switch k {
	case JobStmt:
		return "job"
	case RunStmt:
		return "run"
	case PhaseStmt:
		return "phase"
	default:
		return fmt.Sprintf("kind=%d", int(k))
	}
}

// Job is a job declaration.
type Job struct {
	Name string
	// Args is command line of the job. Empty for a job that
	// only groups its dependencies.
	Args []string
	Deps []string
	// Extract requests dependency extraction through a pipe.
	Extract bool
	// Phony is a job without an output file.
	Phony bool
	// UseSavedep adds dependencies recorded in the dependency cache.
	UseSavedep bool
}

// Statement is a statement of a project description.
type Statement struct {
	Kind Kind
	// Pos is a position in the file where the statement was made.
	Pos string

	// Job is set for JobStmt.
	Job *Job
	// Args is set for RunStmt.
	Args []string
}

// File is a loaded project description.
type File struct {
	Filename   string
	Statements []Statement
}

// Jobs returns number of declared jobs.
func (f *File) Jobs() int {
	n := 0
	for _, s := range f.Statements {
		if s.Kind == JobStmt {
			n++
		}
	}
	return n
}

// Load loads the project description fname on the local disk.
// Files loaded by load() are relative to the directory of fname.
func Load(ctx context.Context, fname string) (*File, error) {
	return LoadFS(ctx, os.DirFS(filepath.Dir(fname)), filepath.Base(fname))
}

// LoadFS loads the project description fname in fsys.
func LoadFS(ctx context.Context, fsys fs.FS, fname string) (*File, error) {
	f := &File{Filename: fname}
	l := &loader{
		ctx:     ctx,
		fsys:    fsys,
		file:    f,
		modules: make(map[string]*module),
	}
	l.predeclared = l.builtins()
	_, err := l.load(fname)
	if err != nil {
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		}
		return nil, err
	}
	log.Infof("buildfile %s: %d statements, %d jobs", fname, len(f.Statements), f.Jobs())
	return f, nil
}

// module is a loaded module, or a module being loaded if globals is nil.
type module struct {
	globals starlark.StringDict
	err     error
}

// loader loads Starlark modules in fsys.
type loader struct {
	ctx         context.Context
	fsys        fs.FS
	file        *File
	predeclared starlark.StringDict
	modules     map[string]*module
}

func (l *loader) newThread(name, modulename string) *starlark.Thread {
	t := &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: l.Load,
	}
	t.SetLocal("modulename", modulename)
	return t
}

// Load loads a Starlark module.
// A module name is relative to the module that loads it.
func (l *loader) Load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	cur, ok := thread.Local("modulename").(string)
	if !ok {
		return nil, fmt.Errorf("load %s: unknown current module", name)
	}
	return l.load(path.Join(path.Dir(cur), name))
}

func (l *loader) load(fname string) (starlark.StringDict, error) {
	if err := l.ctx.Err(); err != nil {
		return nil, err
	}
	if m, ok := l.modules[fname]; ok {
		if m == nil {
			return nil, fmt.Errorf("cycle in load graph: %s", fname)
		}
		return m.globals, m.err
	}
	log.Debugf("load %s", fname)
	buf, err := fs.ReadFile(l.fsys, fname)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", fname, err)
	}
	l.modules[fname] = nil
	t := l.newThread("module "+fname, fname)
	globals, err := starlark.ExecFile(t, fname, buf, l.predeclared)
	l.modules[fname] = &module{globals: globals, err: err}
	return globals, err
}

func (l *loader) add(thread *starlark.Thread, s Statement) {
	s.Pos = thread.CallFrame(1).Pos.String()
	l.file.Statements = append(l.file.Statements, s)
}
