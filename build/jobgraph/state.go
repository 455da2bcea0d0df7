// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import "fmt"

// State is a state of a job.
type State int

const (
	// Unknown is a job whose dependencies are not ready yet.
	Unknown State = iota
	// Runnable is a job that needs to run and can run.
	Runnable
	// Running is a job dispatched for execution.
	Running
	// UpToDate is a job that finished or didn't need to run.
	UpToDate
	// Failed is a job that failed, or whose dependency failed.
	Failed

	numStates
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case UpToDate:
		return "uptodate"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state=%d", int(s))
	}
}

// Done reports whether the state is terminal in a run.
func (s State) Done() bool {
	return s == UpToDate || s == Failed
}
