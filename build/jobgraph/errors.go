// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateJob is an error when a job already has an operation.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrSelfDependency is an error when a job depends on itself.
	ErrSelfDependency = errors.New("job depends on itself")

	// ErrBuildFailed is an error when some jobs failed.
	ErrBuildFailed = errors.New("build failed")
)

// MissingSourceError is an error of missing source needed for build.
type MissingSourceError struct {
	Target   string
	NeededBy string
}

func (e MissingSourceError) Error() string {
	if e.NeededBy != "" {
		return fmt.Sprintf("%q, needed by %q, missing and no known rule to make it", e.Target, e.NeededBy)
	}
	return fmt.Sprintf("%q missing and no known rule to make it", e.Target)
}

// CycleError is an error of dependency cycle.
type CycleError struct {
	// Cycle is a list of job names, the first one repeated at the end.
	Cycle []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// BuildError is an error of failed jobs.
// It matches ErrBuildFailed and the first failure's cause.
type BuildError struct {
	// Failed is a list of failed job names, in creation order.
	Failed []string
	// Cause is the reason of the first failure.
	Cause error
}

func (e *BuildError) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("%v: %v", ErrBuildFailed, e.Cause)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d job(s) failed: %s", len(e.Failed), strings.Join(e.Failed, ", "))
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *BuildError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrBuildFailed}
	}
	return []error{ErrBuildFailed, e.Cause}
}
