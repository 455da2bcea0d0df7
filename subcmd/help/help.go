// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package help provides help subcommand.
package help

import (
	"flag"
	"fmt"
	"io"
	"slices"

	"github.com/maruel/subcommands"
)

// Cmd returns the Command for the `help` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "help [<command>|-advanced]",
		ShortDesc: "prints help about a command",
		LongDesc:  "Prints commands, global flags and environment variables, or help about a specific command.\nUse -advanced to display all commands.",
		CommandRun: func() subcommands.CommandRun {
			ret := &helpCmdRun{}
			ret.Flags.BoolVar(&ret.advanced, "advanced", false, "show advanced commands")
			return ret
		},
	}
}

type helpCmdRun struct {
	subcommands.CommandRunBase
	advanced bool
}

func (h *helpCmdRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) > 0 {
		return subcommands.CmdHelp.CommandRun().Run(a, args, env)
	}
	w := a.GetOut()
	subcommands.Usage(w, a, h.advanced)
	fmt.Fprintln(w, "Common flags accepted by all commands:")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
	printEnv(w, a)
	return 0
}

// printEnv lists environment variables the application exposes to
// build commands.
func printEnv(w io.Writer, a subcommands.Application) {
	ea, ok := a.(interface {
		GetEnvVars() map[string]subcommands.EnvVarDefinition
	})
	if !ok {
		return
	}
	vars := ea.GetEnvVars()
	if len(vars) == 0 {
		return
	}
	fmt.Fprintln(w, "\nEnvironment variables:")
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n\t%s\n", name, vars[name].ShortDesc)
	}
}
