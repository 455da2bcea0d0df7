// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package build

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/anvil/build/jobgraph"
	"go.chromium.org/infra/build/anvil/execute"
	"go.chromium.org/infra/build/anvil/ui"
)

// progress reports jobs to the user. It is called by the scheduler
// in the orchestrator goroutine.
type progress struct {
	sched   *jobgraph.Scheduler
	verbose bool
}

func (p *progress) started(j *jobgraph.Job) {
	if !p.verbose {
		return
	}
	st := p.sched.Stats()
	ui.Default.PrintLines("\n", fmt.Sprintf("[%d/%d] %s\n", st.Done, st.Total, describe(j, true)))
}

func (p *progress) finished(j *jobgraph.Job, d time.Duration) {
	st := p.sched.Stats()
	if j.State() == jobgraph.Failed {
		msg := fmt.Sprintf("FAILED: %s %s", j.Name(), ui.FormatDuration(d))
		if ui.IsTerminal() {
			msg = ui.SGR(ui.Red, msg)
		}
		ui.Default.PrintLines("\n", msg+"\n", describe(j, true)+"\n")
		if cmd, ok := j.Operation().(*execute.Cmd); ok {
			log.Warnf("%s: exit=%d", j.Name(), cmd.ExitCode())
		}
		return
	}
	msg := fmt.Sprintf("[%d/%d] %s", st.Done, st.Total, describe(j, false))
	if d >= ui.DurationThreshold {
		msg = fmt.Sprintf("%s %s", msg, ui.FormatDuration(d))
	}
	ui.Default.PrintLines(msg)
}

// describe returns a job description. The full command line is
// shown only if verbose.
func describe(j *jobgraph.Job, verbose bool) string {
	op := j.Operation()
	if op == nil {
		return j.Name()
	}
	if cmd, ok := op.(*execute.Cmd); ok && !verbose {
		if cmd.Desc != "" {
			return cmd.Desc
		}
		return j.Name()
	}
	return op.Describe()
}
