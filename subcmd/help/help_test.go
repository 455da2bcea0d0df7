// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package help

import (
	"bytes"
	"testing"

	"github.com/maruel/subcommands"
)

type envApp struct {
	subcommands.Application
	vars map[string]subcommands.EnvVarDefinition
}

func (a envApp) GetEnvVars() map[string]subcommands.EnvVarDefinition {
	return a.vars
}

func TestPrintEnv(t *testing.T) {
	app := envApp{
		vars: map[string]subcommands.EnvVarDefinition{
			"B_VAR": {ShortDesc: "second"},
			"A_VAR": {ShortDesc: "first"},
		},
	}
	var buf bytes.Buffer
	printEnv(&buf, app)
	want := "\nEnvironment variables:\n  A_VAR\n\tfirst\n  B_VAR\n\tsecond\n"
	if got := buf.String(); got != want {
		t.Errorf("printEnv=%q; want %q", got, want)
	}

	buf.Reset()
	printEnv(&buf, envApp{})
	if got := buf.String(); got != "" {
		t.Errorf("printEnv(no vars)=%q; want empty", got)
	}
}
