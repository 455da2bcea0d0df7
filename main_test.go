// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/subcommands"
)

func TestAnvilMain(t *testing.T) {
	dir := t.TempDir()
	// subcommands change the working directory by -C.
	t.Chdir(dir)
	err := os.WriteFile(filepath.Join(dir, "BUILD.star"), []byte(`job("out", cmd="touch out")`+"\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"version"},
		{"build", "-C", dir, "-j", "2"},
		{"savedep", "-C", dir},
	} {
		exitCode := subcommands.Run(getApplication(), args)
		if exitCode != 0 {
			t.Fatalf("anvil %q returned exit code %d", args, exitCode)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); err != nil {
		t.Errorf("out is not built: %v", err)
	}
}
