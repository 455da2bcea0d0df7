// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildfile

import (
	"fmt"
	"runtime"

	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"go.chromium.org/infra/build/anvil/toolsupport/shutil"
)

func (l *loader) builtins() starlark.StringDict {
	runtimeModule := &starlarkstruct.Module{
		Name: "runtime",
		Members: map[string]starlark.Value{
			"num_cpu": starlark.MakeInt(runtime.NumCPU()),
			"os":      starlark.String(runtime.GOOS),
			"arch":    starlark.String(runtime.GOARCH),
		},
	}
	runtimeModule.Freeze()
	return starlark.StringDict{
		"job":     starlark.NewBuiltin("job", l.starJob),
		"run":     starlark.NewBuiltin("run", l.starRun),
		"phase":   starlark.NewBuiltin("phase", l.starPhase),
		"runtime": runtimeModule,
		"path":    starPath(),
		"json":    starjson.Module,
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

// Starlark function `job(name, cmd=None, deps=[], extract=False, phony=False, use_savedep=True)`
// to declare a job. It returns name.
func (l *loader) starJob(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var cmd, deps starlark.Value = starlark.None, starlark.None
	var extract, phony bool
	useSavedep := true
	err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &name,
		"cmd?", &cmd,
		"deps?", &deps,
		"extract?", &extract,
		"phony?", &phony,
		"use_savedep?", &useSavedep)
	if err != nil {
		return starlark.None, err
	}
	if name == "" {
		return starlark.None, fmt.Errorf("%s: empty name", fn.Name())
	}
	j := &Job{
		Name:       name,
		Extract:    extract,
		Phony:      phony,
		UseSavedep: useSavedep,
	}
	j.Args, err = unpackCmd(cmd)
	if err != nil {
		return starlark.None, fmt.Errorf("%s(%q): cmd: %w", fn.Name(), name, err)
	}
	if deps != starlark.None {
		j.Deps, err = unpackList(deps)
		if err != nil {
			return starlark.None, fmt.Errorf("%s(%q): deps: %w", fn.Name(), name, err)
		}
	}
	if extract && len(j.Args) == 0 {
		return starlark.None, fmt.Errorf("%s(%q): extract without cmd", fn.Name(), name)
	}
	l.add(thread, Statement{Kind: JobStmt, Job: j})
	return starlark.String(name), nil
}

// Starlark function `run(cmd)` to run cmd after jobs declared so far.
func (l *loader) starRun(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cmd starlark.Value
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "cmd", &cmd)
	if err != nil {
		return starlark.None, err
	}
	cmdArgs, err := unpackCmd(cmd)
	if err != nil {
		return starlark.None, fmt.Errorf("%s: cmd: %w", fn.Name(), err)
	}
	if len(cmdArgs) == 0 {
		return starlark.None, fmt.Errorf("%s: empty cmd", fn.Name())
	}
	l.add(thread, Statement{Kind: RunStmt, Args: cmdArgs})
	return starlark.None, nil
}

// Starlark function `phase()` to finish jobs declared so far.
func (l *loader) starPhase(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackArgs(fn.Name(), args, kwargs)
	if err != nil {
		return starlark.None, err
	}
	l.add(thread, Statement{Kind: PhaseStmt})
	return starlark.None, nil
}

// unpackCmd unpacks a command line string or a list of arguments.
func unpackCmd(v starlark.Value) ([]string, error) {
	if v == starlark.None {
		return nil, nil
	}
	if s, ok := starlark.AsString(v); ok {
		if s == "" {
			return nil, nil
		}
		return shutil.Command(s), nil
	}
	return unpackList(v)
}

func unpackList(v starlark.Value) ([]string, error) {
	iterator := starlark.Iterate(v)
	if iterator == nil {
		return nil, fmt.Errorf("got %v; want iterator", v.Type())
	}
	defer iterator.Done()
	var elem starlark.Value
	var list []string
	for iterator.Next(&elem) {
		s, ok := starlark.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("got %v in %v; want string", elem.Type(), v.Type())
		}
		list = append(list, s)
	}
	return list, nil
}
