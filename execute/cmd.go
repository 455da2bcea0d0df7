// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package execute runs commands.
package execute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/toolsupport/extractpipe"
	"go.chromium.org/infra/build/anvil/toolsupport/shutil"
)

// Executor is an interface to run the cmd.
type Executor interface {
	Run(ctx context.Context, cmd *Cmd) error
}

// Cmd includes all the information required to run a build command.
// It implements the build operation interface.
type Cmd struct {
	// ID is used as a unique identifier for this action in logs.
	// It does not have to be human-readable, so using a UUID is fine.
	ID string

	// Desc is a short, human-readable identifier that is shown to the user when referencing this action in the UI or a log file.
	// Example: "CXX hello.o"
	Desc string

	// Args holds command line arguments.
	Args []string

	// Env specifies the environment of the process.
	// If nil, the process inherits the current environment.
	Env []string

	// Dir specifies the working directory of the cmd.
	Dir string

	// Extract requests a dependency extraction pipe for the cmd.
	// The pipe path is passed in $ANVIL_DEPFILE.
	Extract bool

	// Pipes is a pool of extraction pipes.
	Pipes *extractpipe.Pool

	// AlwaysRun marks the cmd as not producing a file, so it
	// always runs once its dependencies are up to date.
	AlwaysRun bool

	// Executor runs the cmd.
	Executor Executor

	stdoutWriter, stderrWriter io.Writer

	// fields below are set by Execute and owned by the goroutine
	// running it until it returns.
	depfile      string
	stdoutBuffer bytes.Buffer
	stderrBuffer bytes.Buffer
	exitCode     int
	duration     time.Duration
	extracted    []string
}

// outMu serializes writes of command outputs.
var outMu sync.Mutex

// String returns an ID of the cmd.
func (c *Cmd) String() string {
	return c.ID
}

// Command returns a command line string.
func (c *Cmd) Command() string {
	if len(c.Args) == 3 && c.Args[0] == "/bin/sh" && c.Args[1] == "-c" {
		return c.Args[2]
	}
	return shutil.Join(c.Args)
}

// Describe returns a description of the cmd.
func (c *Cmd) Describe() string {
	if c.Desc != "" {
		return c.Desc
	}
	return c.Command()
}

// Phony reports whether the cmd has no output file.
func (c *Cmd) Phony() bool {
	return c.AlwaysRun
}

// Depfile returns the extraction pipe path while the cmd runs.
func (c *Cmd) Depfile() string {
	return c.depfile
}

// Environ returns environment of the process.
func (c *Cmd) Environ() []string {
	env := c.Env
	if env == nil {
		env = os.Environ()
	}
	if c.depfile == "" {
		return env
	}
	return append(slices.Clip(env), extractpipe.EnvName+"="+c.depfile)
}

// SetStdoutWriter sets w for stdout.
func (c *Cmd) SetStdoutWriter(w io.Writer) {
	c.stdoutWriter = w
}

// SetStderrWriter sets w for stderr.
func (c *Cmd) SetStderrWriter(w io.Writer) {
	c.stderrWriter = w
}

// StdoutWriter returns a writer set for stdout.
func (c *Cmd) StdoutWriter() io.Writer {
	c.stdoutBuffer.Reset()
	return &c.stdoutBuffer
}

// StderrWriter returns a writer set for stderr.
func (c *Cmd) StderrWriter() io.Writer {
	c.stderrBuffer.Reset()
	return &c.stderrBuffer
}

// Stdout returns stdout output of the cmd.
func (c *Cmd) Stdout() []byte {
	return c.stdoutBuffer.Bytes()
}

// Stderr returns stderr output of the cmd.
func (c *Cmd) Stderr() []byte {
	return c.stderrBuffer.Bytes()
}

// SetExitCode records exit code of the cmd.
func (c *Cmd) SetExitCode(code int) {
	c.exitCode = code
}

// ExitCode returns exit code of the last run.
func (c *Cmd) ExitCode() int {
	return c.exitCode
}

// Duration returns duration of the last run.
func (c *Cmd) Duration() time.Duration {
	return c.duration
}

// ExtractedDependencies returns dependencies the cmd reported
// through the extraction pipe in the last run.
func (c *Cmd) ExtractedDependencies() []string {
	return c.extracted
}

// Execute runs the cmd and reports whether it succeeded.
// Failures of dependency extraction are logged and leave
// ExtractedDependencies empty; they don't fail the cmd.
func (c *Cmd) Execute(ctx context.Context) bool {
	if c.Executor == nil {
		log.Errorf("%s: no executor for %q", c.ID, c.Describe())
		return false
	}
	c.extracted = nil
	c.depfile = ""
	var rd *extractpipe.Reader
	if c.Extract && c.Pipes != nil {
		path, err := c.Pipes.Get()
		if err != nil {
			log.Warnf("%s: no extraction pipe: %v", c.ID, err)
		} else {
			defer c.Pipes.Put(path)
			rd, err = extractpipe.Open(path)
			if err != nil {
				log.Warnf("%s: open extraction pipe %s: %v", c.ID, path, err)
				rd = nil
			} else {
				c.depfile = path
			}
		}
	}
	started := time.Now()
	err := c.Executor.Run(ctx, c)
	c.duration = time.Since(started)
	if rd != nil {
		c.extracted = c.readDeps(ctx, rd)
	}
	c.flushOutputs()
	if err != nil {
		log.Errorf("%s: %s failed: %v", c.ID, c.Describe(), err)
		return false
	}
	log.Debugf("%s: %s done in %s extracted=%d", c.ID, c.Describe(), c.duration, len(c.extracted))
	return true
}

func (c *Cmd) readDeps(ctx context.Context, rd *extractpipe.Reader) []string {
	err := rd.CloseWrite()
	if err != nil {
		log.Warnf("%s: close extraction pipe: %v", c.ID, err)
	}
	pairs, err := rd.Deps(ctx)
	if err != nil {
		log.Warnf("%s: extracted deps: %v", c.ID, err)
		return nil
	}
	var deps []string
	seen := make(map[string]bool)
	for _, p := range pairs {
		if seen[p.To] {
			continue
		}
		seen[p.To] = true
		deps = append(deps, p.To)
	}
	return deps
}

func (c *Cmd) flushOutputs() {
	outMu.Lock()
	defer outMu.Unlock()
	if c.stdoutWriter != nil && c.stdoutBuffer.Len() > 0 {
		c.stdoutWriter.Write(c.stdoutBuffer.Bytes())
	}
	if c.stderrWriter != nil && c.stderrBuffer.Len() > 0 {
		c.stderrWriter.Write(c.stderrBuffer.Bytes())
	}
}

// ExitError is an error of cmd exit.
type ExitError struct {
	ExitCode int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit=%d", e.ExitCode)
}
