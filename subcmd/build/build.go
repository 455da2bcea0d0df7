// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package build implements the subcommand `build` which loads a project
// description and runs its jobs, skipping jobs that are up to date.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/cpuid/v2"
	"github.com/maruel/subcommands"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/anvil/build/buildfile"
	"go.chromium.org/infra/build/anvil/build/jobgraph"
	"go.chromium.org/infra/build/anvil/build/savedep"
	"go.chromium.org/infra/build/anvil/execute/localexec"
	"go.chromium.org/infra/build/anvil/toolsupport/extractpipe"
	"go.chromium.org/infra/build/anvil/ui"
)

const buildUsage = `load the project description and build its jobs.

 $ anvil build [-C <dir>] [-f BUILD.star] [-j N] [options]

Jobs run in declaration order as their dependencies become up to date.
Dependencies reported by commands through $ANVIL_DEPFILE are saved in
the -savedep file and used by later builds.
`

// Cmd returns the Command for the `build` subcommand provided by this package.
func Cmd(version string) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "build <args>...",
		ShortDesc: "build jobs of the project description",
		LongDesc:  buildUsage,
		CommandRun: func() subcommands.CommandRun {
			r := buildCmdRun{
				version: version,
			}
			r.init()
			return &r
		},
	}
}

type buildCmdRun struct {
	subcommands.CommandRunBase
	version string
	started time.Time

	// flag values
	dir         string
	fname       string
	jobs        int
	savedepFile string
	pipeDir     string
	metricsFile string
	dryRun      bool
	verbose     bool
}

func (c *buildCmdRun) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "build running directory")
	c.Flags.StringVar(&c.fname, "f", "BUILD.star", "project description filename (relative to -C)")
	c.Flags.IntVar(&c.jobs, "j", defaultJobs(), "run N jobs in parallel. 1 runs jobs one at a time")
	c.Flags.StringVar(&c.savedepFile, "savedep", ".anvil_deps", "saved dependencies filename (relative to -C). empty disables")
	c.Flags.StringVar(&c.pipeDir, "pipe_dir", "", "directory for dependency extraction pipes. default is a temporary directory")
	c.Flags.StringVar(&c.metricsFile, "metrics_file", "", "filename to write metrics in prometheus text format (relative to -C)")
	c.Flags.BoolVar(&c.dryRun, "n", false, "dry run")
	c.Flags.BoolVar(&c.verbose, "v", false, "show all command lines while building")
}

// defaultJobs returns default parallelism from the number of logical cores.
func defaultJobs() int {
	n := cpuid.CPU.LogicalCores
	if n <= 0 {
		n = cpuid.CPU.PhysicalCores * max(cpuid.CPU.ThreadsPerCore, 1)
	}
	if n <= 0 {
		return 1
	}
	return n + 2
}

type flagError struct {
	err error
}

func (f flagError) Error() string {
	return f.err.Error()
}

type errInterrupted struct{}

func (errInterrupted) Error() string        { return "interrupt by signal" }
func (errInterrupted) Is(target error) bool { return target == context.Canceled }

// Run runs the `build` subcommand.
func (c *buildCmdRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	c.started = time.Now()
	ctx := cli.GetContext(a, c, env)
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n", a.GetName())
		return 2
	}
	stats, err := c.run(ctx)
	d := time.Since(c.started)
	sps := float64(stats.Executed) / d.Seconds()
	dur := ui.FormatDuration(d)
	if err != nil {
		var errFlag flagError
		var errCycle jobgraph.CycleError
		var errMissingSource jobgraph.MissingSourceError
		msgPrefix := "Error"
		switch {
		case errors.As(err, &errFlag):
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		case errors.As(err, &errCycle), errors.As(err, &errMissingSource):
			msgPrefix = "Schedule Failure"
		case errors.Is(err, jobgraph.ErrBuildFailed):
			msgPrefix = "Build Failure"
		case errors.Is(err, context.Canceled):
			msgPrefix = "Interrupted"
		}
		if ui.IsTerminal() {
			dur = ui.SGR(ui.Bold, dur)
			msgPrefix = ui.SGR(ui.BackgroundRed, msgPrefix)
		}
		fmt.Fprintf(os.Stderr, "\n%6s %s: %d done %d remaining - %.02f/s\n %v\n", dur, msgPrefix, stats.Done, stats.Total-stats.Done, sps, err)
		return 1
	}
	msgPrefix := "Build Succeeded"
	if stats.Executed == 0 {
		msgPrefix = "Everything is up-to-date"
	}
	if ui.IsTerminal() {
		dur = ui.SGR(ui.Bold, dur)
		msgPrefix = ui.SGR(ui.Green, msgPrefix)
	}
	fmt.Fprintf(os.Stderr, "%6s %s: %d steps %d skipped - %.02f/s\n", dur, msgPrefix, stats.Executed, stats.Skipped, sps)
	return 0
}

func (c *buildCmdRun) run(ctx context.Context) (stats jobgraph.Stats, err error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer signals.HandleInterrupt(func() {
		cancel(errInterrupted{})
	})()
	if c.jobs <= 0 {
		return stats, flagError{err: fmt.Errorf("-j %d: must be positive", c.jobs)}
	}
	if c.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if c.dir != "" && c.dir != "." {
		err := os.Chdir(c.dir)
		if err != nil {
			return stats, flagError{err: fmt.Errorf("-C %s: %w", c.dir, err)}
		}
	}
	if !c.dryRun {
		lock, err := newLockFile(".anvil_lock")
		if err != nil {
			return stats, err
		}
		err = lock.Lock()
		if err != nil {
			lock.Close()
			return stats, err
		}
		defer func() {
			err := lock.Unlock()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to unlock .anvil_lock: %v\n", err)
			}
			err = lock.Close()
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to close .anvil_lock: %v\n", err)
			}
		}()
	}

	log.Infof("anvil version %s", c.version)
	log.Infof("%s", cpuinfo())
	if buildInfo, ok := debug.ReadBuildInfo(); ok && buildInfo.GoVersion != "" {
		log.Infof("Go version: %s", buildInfo.GoVersion)
	}
	log.Infof("commandline %q", os.Args)
	log.Infof("is_terminal=%t jobs=%d dry_run=%t", ui.IsTerminal(), c.jobs, c.dryRun)

	spin := ui.Default.NewSpinner()
	spin.Start("loading %s", c.fname)
	var eg errgroup.Group
	var bf *buildfile.File
	eg.Go(func() error {
		var err error
		bf, err = buildfile.Load(ctx, c.fname)
		return err
	})
	cache := savedep.New(c.savedepFile)
	if c.savedepFile != "" {
		eg.Go(func() error {
			cache = savedep.Load(ctx, c.savedepFile)
			return nil
		})
	}
	err = eg.Wait()
	if err != nil {
		spin.Stop(err)
		return stats, err
	}
	spin.Done("%d jobs, %d saved dependencies", bf.Jobs(), cache.Len())

	pipeDir := c.pipeDir
	if pipeDir == "" {
		pipeDir, err = os.MkdirTemp("", "anvil")
		if err != nil {
			return stats, err
		}
		defer os.RemoveAll(pipeDir)
	}
	pipes := extractpipe.New(pipeDir, "anvil-")
	defer func() {
		err := pipes.Close()
		if err != nil {
			log.Warnf("close extraction pipes: %v", err)
		}
	}()

	metrics := jobgraph.NewMetrics()
	graph := jobgraph.NewGraph(cache, nil)
	p := &progress{verbose: c.verbose}
	sched := jobgraph.New(graph, jobgraph.Options{
		Workers:  c.jobs,
		Metrics:  metrics,
		DryRun:   c.dryRun,
		Started:  p.started,
		Finished: p.finished,
	})
	defer sched.Close()
	p.sched = sched

	defer func() {
		stats = sched.Stats()
		ferr := c.finish(ctx, cache, metrics)
		if err == nil {
			err = ferr
		}
	}()
	r := &replayer{
		graph:   graph,
		sched:   sched,
		pipes:   pipes,
		exec:    localexec.LocalExec{},
		verbose: c.verbose,
	}
	return stats, r.replay(ctx, bf.Statements)
}

// finish saves dependencies and metrics of the build.
func (c *buildCmdRun) finish(ctx context.Context, cache *savedep.Cache, metrics *jobgraph.Metrics) error {
	var eg errgroup.Group
	if c.savedepFile != "" && !c.dryRun {
		eg.Go(func() error {
			err := cache.Save(ctx)
			if err != nil {
				return fmt.Errorf("save dependencies: %w", err)
			}
			return nil
		})
	}
	if c.metricsFile != "" {
		eg.Go(func() error {
			return writeMetrics(c.metricsFile, metrics)
		})
	}
	return eg.Wait()
}

func writeMetrics(fname string, metrics *jobgraph.Metrics) (err error) {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()
	err = metrics.WriteText(f)
	if err != nil {
		return fmt.Errorf("write metrics to %s: %w", fname, err)
	}
	return nil
}

func cpuinfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu brand=%q vendor=%q ", cpuid.CPU.BrandName, cpuid.CPU.VendorString)
	fmt.Fprintf(&sb, "physicalCores=%d threadsPerCore=%d logicalCores=%d ", cpuid.CPU.PhysicalCores, cpuid.CPU.ThreadsPerCore, cpuid.CPU.LogicalCores)
	fmt.Fprintf(&sb, "vm=%t", cpuid.CPU.VM())
	return sb.String()
}
