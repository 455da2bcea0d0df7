// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package execute_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/anvil/execute"
	"go.chromium.org/infra/build/anvil/execute/localexec"
	"go.chromium.org/infra/build/anvil/toolsupport/extractpipe"
)

func TestCmdExecute(t *testing.T) {
	ctx := context.Background()
	var stdout bytes.Buffer
	cmd := &execute.Cmd{
		ID:       "echo",
		Args:     []string{"/bin/sh", "-c", "echo hello"},
		Executor: localexec.LocalExec{},
	}
	cmd.SetStdoutWriter(&stdout)
	if !cmd.Execute(ctx) {
		t.Fatalf("cmd.Execute()=false; want true. stderr=%q", cmd.Stderr())
	}
	if got, want := stdout.String(), "hello\n"; got != want {
		t.Errorf("stdout=%q; want %q", got, want)
	}
	if got, want := cmd.Describe(), "echo hello"; got != want {
		t.Errorf("cmd.Describe()=%q; want %q", got, want)
	}
	if deps := cmd.ExtractedDependencies(); len(deps) != 0 {
		t.Errorf("cmd.ExtractedDependencies()=%q; want none", deps)
	}
}

func TestCmdExecuteFailure(t *testing.T) {
	ctx := context.Background()
	cmd := &execute.Cmd{
		ID:       "fail",
		Desc:     "FAIL",
		Args:     []string{"/bin/sh", "-c", "exit 3"},
		Executor: localexec.LocalExec{},
	}
	if cmd.Execute(ctx) {
		t.Fatalf("cmd.Execute()=true; want false")
	}
	if got, want := cmd.ExitCode(), 3; got != want {
		t.Errorf("cmd.ExitCode()=%d; want %d", got, want)
	}
}

func TestCmdExecuteNoExecutor(t *testing.T) {
	ctx := context.Background()
	cmd := &execute.Cmd{
		ID:   "noexec",
		Args: []string{"true"},
	}
	if cmd.Execute(ctx) {
		t.Errorf("cmd.Execute()=true without executor; want false")
	}
}

func TestCmdExtractDeps(t *testing.T) {
	ctx := context.Background()
	pipes := extractpipe.New(t.TempDir(), "anvil-dep-")
	defer pipes.Close()

	cmd := &execute.Cmd{
		ID:       "extract",
		Args:     []string{"/bin/sh", "-c", `printf 'out.o: a.h \\\n b.h\nout.o: a.h c.h\n' > "$ANVIL_DEPFILE"`},
		Extract:  true,
		Pipes:    pipes,
		Executor: localexec.LocalExec{},
	}
	if !cmd.Execute(ctx) {
		t.Fatalf("cmd.Execute()=false; want true. stderr=%q", cmd.Stderr())
	}
	want := []string{"a.h", "b.h", "c.h"}
	if diff := cmp.Diff(want, cmd.ExtractedDependencies()); diff != "" {
		t.Errorf("cmd.ExtractedDependencies() -want +got:\n%s", diff)
	}

	// command that doesn't write deps.
	cmd = &execute.Cmd{
		ID:       "noreport",
		Args:     []string{"true"},
		Extract:  true,
		Pipes:    pipes,
		Executor: localexec.LocalExec{},
	}
	if !cmd.Execute(ctx) {
		t.Fatalf("cmd.Execute()=false; want true")
	}
	if deps := cmd.ExtractedDependencies(); len(deps) != 0 {
		t.Errorf("cmd.ExtractedDependencies()=%q; want none", deps)
	}
	if got := pipes.Created(); got != 1 {
		t.Errorf("pipes.Created()=%d; want 1 (reused)", got)
	}
}

func TestCmdExtractDepsPipeUnavailable(t *testing.T) {
	ctx := context.Background()
	pipes := extractpipe.New(t.TempDir(), "anvil-dep-")
	pipes.Close()

	cmd := &execute.Cmd{
		ID:       "extract",
		Args:     []string{"/bin/sh", "-c", `test -z "$ANVIL_DEPFILE"`},
		Extract:  true,
		Pipes:    pipes,
		Executor: localexec.LocalExec{},
	}
	if !cmd.Execute(ctx) {
		t.Fatalf("cmd.Execute()=false; want true with no pipe")
	}
	if deps := cmd.ExtractedDependencies(); len(deps) != 0 {
		t.Errorf("cmd.ExtractedDependencies()=%q; want none", deps)
	}
}
