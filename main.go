// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Anvil is a build tool that runs jobs of a project description in
// dependency order, skipping jobs that are up to date.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/anvil/subcmd/build"
	"go.chromium.org/infra/build/anvil/subcmd/help"
	"go.chromium.org/infra/build/anvil/subcmd/savedep"
	"go.chromium.org/infra/build/anvil/subcmd/version"
)

const versionID = "v0.1.0"

var logLevel = flag.String("log_level", "warn", `log level. "debug", "info", "warn" or "error"`)

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "anvil",
		Title: "Build tool that skips up-to-date jobs",
		Context: func(ctx context.Context) context.Context {
			return ctx
		},
		Commands: []*subcommands.Command{
			build.Cmd(versionID),
			savedep.Cmd(),

			help.Cmd(),
			version.Cmd(versionID),
		},
		EnvVars: map[string]subcommands.EnvVarDefinition{
			"ANVIL_DEPFILE": {
				ShortDesc: "set by anvil for commands with extract=True. path of a pipe to write `from: to...` dependencies to.",
			},
		},
	}
}

func main() {
	os.Exit(anvilMain())
}

func anvilMain() int {
	flag.Parse()
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-log_level: %v\n", err)
		return 2
	}
	log.SetLevel(level)

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	// Print build information to the log.
	buildinfo, ok := debug.ReadBuildInfo()
	log.Debugf("buildinfo: ok=%t", ok)
	if ok {
		log.Debugf("main module: %s %s", moduleInfo(&buildinfo.Main), vcsInfo(buildinfo))
	}
	return subcommands.Run(getApplication(), flag.Args())
}

func moduleInfo(m *debug.Module) string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("path:%s version:%s sum:%s replace:%s", m.Path, m.Version, m.Sum, moduleInfo(m.Replace))
}

func vcsInfo(buildinfo *debug.BuildInfo) string {
	m := make(map[string]string)
	for _, bs := range buildinfo.Settings {
		if strings.HasPrefix(bs.Key, "vcs.") {
			m[bs.Key] = bs.Value
		}
	}
	return fmt.Sprintf("vcs[revision=%s time=%s modified=%s]", m["vcs.revision"], m["vcs.time"], m["vcs.modified"])
}
