// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPrintVersion(t *testing.T) {
	buildInfo := &debug.BuildInfo{
		GoVersion: "go1.24.2",
		Deps: []*debug.Module{
			{Path: "go.starlark.net", Version: "v0.0.0-20250417143717-f57e51f710eb"},
		},
		Settings: []debug.BuildSetting{
			{Key: "-trimpath", Value: "true"},
			{Key: "vcs.revision", Value: "0123abc"},
		},
	}
	var sb strings.Builder
	printVersion(&sb, "anvil v1.0.0", buildInfo, true)
	want := "anvil v1.0.0\n" +
		"go\tgo1.24.2\n" +
		"build\tvcs.revision=0123abc\n" +
		"dep\tgo.starlark.net\tv0.0.0-20250417143717-f57e51f710eb\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("printVersion -want +got:\n%s", diff)
	}

	sb.Reset()
	printVersion(&sb, "anvil v1.0.0", nil, true)
	if got := sb.String(); got != "anvil v1.0.0\n" {
		t.Errorf("printVersion(nil)=%q; want %q", got, "anvil v1.0.0\n")
	}
}
