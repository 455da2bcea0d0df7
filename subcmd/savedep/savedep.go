// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package savedep implements the subcommand `savedep` which shows
// saved dependencies.
package savedep

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/anvil/build/savedep"
)

const usage = `show saved dependencies.

 $ anvil savedep [-C <dir>] [-savedep .anvil_deps] [-r] [targets...]

Without targets, it prints all saved dependencies in the saved format.
With targets, it prints dependencies of the targets, or with -r, the
targets that depend on them.
`

// Cmd returns the Command for the `savedep` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "savedep [-C <dir>] [targets...]",
		ShortDesc: "show saved dependencies",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			r := &run{}
			r.init()
			return r
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	dir     string
	fname   string
	reverse bool
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "build running directory")
	c.Flags.StringVar(&c.fname, "savedep", ".anvil_deps", "saved dependencies filename (relative to -C)")
	c.Flags.BoolVar(&c.reverse, "r", false, "print targets depending on the given names")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx, os.Stdout, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, w io.Writer, targets []string) error {
	err := os.Chdir(c.dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(c.fname); err != nil {
		return err
	}
	cache := savedep.Load(ctx, c.fname)
	return show(w, cache, targets, c.reverse)
}

func show(w io.Writer, cache *savedep.Cache, targets []string, reverse bool) error {
	if len(targets) == 0 {
		_, err := cache.WriteTo(w)
		return err
	}
	var err error
	printEdge := func(from, to string, q savedep.Quality) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, "%s: %s\t# %s\n", from, to, q)
	}
	if reverse {
		cache.Apply(func(from, to string, q savedep.Quality) {
			if slices.Contains(targets, to) {
				printEdge(from, to, q)
			}
		})
		return err
	}
	for _, t := range targets {
		cache.FromApply(t, printEdge)
	}
	return err
}
