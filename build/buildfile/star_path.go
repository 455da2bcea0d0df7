// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildfile

import (
	"fmt"
	"path"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// starPath returns path module.
//
//	base(fname)
//	dir(fname)
//	ext(fname)
//	join(...)
//	rel(basepath, targetpath)
//
// Paths use slashes as build file names do on all platforms.
func starPath() starlark.Value {
	pathModule := &starlarkstruct.Module{
		Name: "path",
		Members: map[string]starlark.Value{
			"base": starlark.NewBuiltin("base", starPathFunc(path.Base)),
			"dir":  starlark.NewBuiltin("dir", starPathFunc(path.Dir)),
			"ext":  starlark.NewBuiltin("ext", starPathFunc(path.Ext)),
			"join": starlark.NewBuiltin("join", starPathJoin),
			"rel":  starlark.NewBuiltin("rel", starPathRel),
		},
	}
	pathModule.Freeze()
	return pathModule
}

// starPathFunc makes a Starlark function `f(fname)` from fn.
func starPathFunc(fn func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var fname string
		err := starlark.UnpackArgs(b.Name(), args, kwargs, "fname", &fname)
		if err != nil {
			return starlark.None, err
		}
		return starlark.String(fn(fname)), nil
	}
}

// Starlark function `path.join(...)` to return joined path name.
func starPathJoin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var elems []string
	for _, v := range args {
		s, ok := starlark.AsString(v)
		if !ok {
			return starlark.None, fmt.Errorf("join: for parameter elems: got %s, want string", v.Type())
		}
		elems = append(elems, s)
	}
	return starlark.String(path.Join(elems...)), nil
}

// Starlark function `path.rel(basepath, targetpath)` to return relative path of targetpath from basepath.
// Both must be clean relative paths, or both absolute.
func starPathRel(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var basepath, targetpath string
	err := starlark.UnpackArgs("rel", args, kwargs, "basepath", &basepath, "targetpath", &targetpath)
	if err != nil {
		return starlark.None, err
	}
	rel, err := relPath(path.Clean(basepath), path.Clean(targetpath))
	if err != nil {
		return starlark.None, err
	}
	return starlark.String(rel), nil
}

func relPath(base, target string) (string, error) {
	if path.IsAbs(base) != path.IsAbs(target) {
		return "", fmt.Errorf("rel: can't make %q relative to %q", target, base)
	}
	if base == "." {
		return target, nil
	}
	b := splitPath(base)
	t := splitPath(target)
	i := 0
	for i < len(b) && i < len(t) && b[i] == t[i] {
		i++
	}
	var elems []string
	for range b[i:] {
		elems = append(elems, "..")
	}
	elems = append(elems, t[i:]...)
	if len(elems) == 0 {
		return ".", nil
	}
	return path.Join(elems...), nil
}

func splitPath(p string) []string {
	var elems []string
	for p != "" && p != "/" && p != "." {
		dir, file := path.Split(p)
		elems = append([]string{file}, elems...)
		p = path.Clean(dir)
		if dir == "" {
			break
		}
	}
	return elems
}
