// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

import (
	"context"
	"strings"
)

// Nop is an operation that does nothing and always runs.
// It is useful for logical targets that only group dependencies.
type Nop struct {
	Desc string
}

// Execute succeeds.
func (n Nop) Execute(ctx context.Context) bool { return true }

// Describe returns description.
func (n Nop) Describe() string { return n.Desc }

// ExtractedDependencies returns nothing.
func (Nop) ExtractedDependencies() []string { return nil }

// Phony is true.
func (Nop) Phony() bool { return true }

// Composite runs operations in order and stops at the first failure.
type Composite []Operation

// Execute runs all operations.
func (c Composite) Execute(ctx context.Context) bool {
	for _, op := range c {
		if !op.Execute(ctx) {
			return false
		}
	}
	return true
}

// Describe joins descriptions of operations.
func (c Composite) Describe() string {
	descs := make([]string, 0, len(c))
	for _, op := range c {
		descs = append(descs, op.Describe())
	}
	return strings.Join(descs, " && ")
}

// ExtractedDependencies returns dependencies extracted by all operations.
func (c Composite) ExtractedDependencies() []string {
	var deps []string
	for _, op := range c {
		deps = append(deps, op.ExtractedDependencies()...)
	}
	return deps
}

// Phony is true if all operations are phony.
func (c Composite) Phony() bool {
	for _, op := range c {
		if !isPhony(op) {
			return false
		}
	}
	return len(c) > 0
}
