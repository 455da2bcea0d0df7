// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"BUILD.star": `
load("rules/cc.star", "cc")

obj = cc("hello.c")
job("hello", cmd=["cc", "-o", "hello", obj], deps=[obj])
run("echo built")
phase()
job("all", deps=["hello"], phony=True, use_savedep=False)
`,
		"rules/cc.star": `
def cc(src):
    out = path.base(src)[:-len(path.ext(src))] + ".o"
    return job(out, cmd="cc -c %s -o %s" % (src, out), deps=[src], extract=True)
`,
	} {
		fname := filepath.Join(dir, name)
		err := os.MkdirAll(filepath.Dir(fname), 0755)
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(fname, []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	f, err := Load(ctx, filepath.Join(dir, "BUILD.star"))
	if err != nil {
		t.Fatalf("Load(ctx, BUILD.star)=_, %v; want nil err", err)
	}
	want := []Statement{
		{
			Kind: JobStmt,
			Job: &Job{
				Name:       "hello.o",
				Args:       []string{"cc", "-c", "hello.c", "-o", "hello.o"},
				Deps:       []string{"hello.c"},
				Extract:    true,
				UseSavedep: true,
			},
		},
		{
			Kind: JobStmt,
			Job: &Job{
				Name:       "hello",
				Args:       []string{"cc", "-o", "hello", "hello.o"},
				Deps:       []string{"hello.o"},
				UseSavedep: true,
			},
		},
		{
			Kind: RunStmt,
			Args: []string{"echo", "built"},
		},
		{
			Kind: PhaseStmt,
		},
		{
			Kind: JobStmt,
			Job: &Job{
				Name:  "all",
				Deps:  []string{"hello"},
				Phony: true,
			},
		},
	}
	if diff := cmp.Diff(want, f.Statements, cmpopts.IgnoreFields(Statement{}, "Pos")); diff != "" {
		t.Errorf("statements -want +got:\n%s", diff)
	}
	for i, s := range f.Statements {
		if s.Pos == "" {
			t.Errorf("statements[%d].Pos is empty", i)
		}
	}
	if got := f.Jobs(); got != 3 {
		t.Errorf("f.Jobs()=%d; want 3", got)
	}
}

func TestLoadShellCommand(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"BUILD.star": &fstest.MapFile{
			Data: []byte(`job("gen.h", cmd="./gen.sh > gen.h")` + "\n"),
		},
	}
	f, err := LoadFS(ctx, fsys, "BUILD.star")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Statements) != 1 {
		t.Fatalf("statements=%d; want 1", len(f.Statements))
	}
	want := []string{"/bin/sh", "-c", "./gen.sh > gen.h"}
	if diff := cmp.Diff(want, f.Statements[0].Job.Args); diff != "" {
		t.Errorf("args -want +got:\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "empty name",
			files:   map[string]string{"BUILD.star": `job("")`},
			wantErr: "empty name",
		},
		{
			name:    "bad deps",
			files:   map[string]string{"BUILD.star": `job("a", deps=[1])`},
			wantErr: "deps",
		},
		{
			name:    "extract without cmd",
			files:   map[string]string{"BUILD.star": `job("a", extract=True)`},
			wantErr: "extract without cmd",
		},
		{
			name:    "empty run",
			files:   map[string]string{"BUILD.star": `run("")`},
			wantErr: "empty cmd",
		},
		{
			name:    "unknown kwarg",
			files:   map[string]string{"BUILD.star": `job("a", outputs=["a"])`},
			wantErr: "outputs",
		},
		{
			name: "load cycle",
			files: map[string]string{
				"BUILD.star": `load("a.star", "x")`,
				"a.star":     `load("BUILD.star", "y")`,
			},
			wantErr: "cycle",
		},
		{
			name:    "missing module",
			files:   map[string]string{"BUILD.star": `load("missing.star", "x")`},
			wantErr: "missing.star",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for name, content := range tc.files {
				fsys[name] = &fstest.MapFile{Data: []byte(content)}
			}
			_, err := LoadFS(ctx, fsys, "BUILD.star")
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("LoadFS()=_, %v; want err containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestRelPath(t *testing.T) {
	for _, tc := range []struct {
		base, target, want string
	}{
		{"out", "out/a.o", "a.o"},
		{"out/Default", "src/a.c", "../../src/a.c"},
		{".", "a/b", "a/b"},
		{"a/b", ".", "../.."},
		{"/x/y", "/x/z", "../z"},
		{"a", "a", "."},
	} {
		got, err := relPath(tc.base, tc.target)
		if err != nil || got != tc.want {
			t.Errorf("relPath(%q, %q)=%q, %v; want %q, nil", tc.base, tc.target, got, err, tc.want)
		}
	}
	if _, err := relPath("a", "/b"); err == nil {
		t.Errorf(`relPath("a", "/b")=_, nil; want err`)
	}
}
