// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package makeutil provides utilities for make-style dependency files.
package makeutil

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/charmbracelet/log"
)

// Parse reads make-style dependency records from r and calls fn for
// each (from, to) pair, in the order they appear.
//
//	<from> ...: <to> ...
//
// Tokens are separated by spaces or tabs. '\'+newline is a space,
// '\'+space and '\'+tab escape the space or tab in a name.
// A newline ends a record.
// A record without ':' or without any <to> yields nothing.
func Parse(r io.Reader, fn func(from, to string)) error {
	p := &parser{r: bufio.NewReader(r)}
	for {
		done, err := p.record(fn)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// ParseFile parses dependency records in fname on fsys.
func ParseFile(ctx context.Context, fsys fs.FS, fname string, fn func(from, to string)) error {
	f, err := fsys.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	err = Parse(f, fn)
	if err != nil {
		return fmt.Errorf("parse %s: %w", fname, err)
	}
	return nil
}

// ParseDepsFile parses *.d file in fname on fsys and returns its inputs.
func ParseDepsFile(ctx context.Context, fsys fs.FS, fname string) ([]string, error) {
	if fname == "" {
		return nil, nil
	}
	b, err := fs.ReadFile(fsys, fname)
	if err != nil {
		return nil, err
	}
	deps := ParseDeps(b)
	log.Debugf("deps %s => %s", fname, deps)
	return deps, nil
}

// ParseDeps parses deps and returns a list of inputs.
// Inputs appearing in more than one record are returned once.
func ParseDeps(b []byte) []string {
	var inputs []string
	seen := make(map[string]bool)
	// parse from []byte never fails.
	_ = Parse(bytes.NewReader(b), func(_, to string) {
		if seen[to] {
			return
		}
		seen[to] = true
		inputs = append(inputs, to)
	})
	return inputs
}

type parser struct {
	r *bufio.Reader
}

// record parses one record. It reports true at the end of input.
func (p *parser) record(fn func(from, to string)) (bool, error) {
	var froms []string
	colon := false
	for {
		tok, eol, err := p.token()
		if err != nil && err != io.EOF {
			return false, err
		}
		switch {
		case tok == "":
		case !colon && tok == ":":
			colon = true
		case !colon && strings.HasSuffix(tok, ":"):
			froms = append(froms, strings.TrimSuffix(tok, ":"))
			colon = true
		case !colon:
			froms = append(froms, tok)
		default:
			for _, from := range froms {
				fn(from, tok)
			}
		}
		if err == io.EOF {
			return true, nil
		}
		if eol {
			return false, nil
		}
	}
}

// token returns the next token on the current line.
// eol is true when an unescaped newline follows the token.
// Spaces and '\'+newline before a token are skipped.
func (p *parser) token() (string, bool, error) {
	var sb strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return sb.String(), true, err
		}
		switch c {
		case ' ', '\t':
			if sb.Len() == 0 {
				continue
			}
			return sb.String(), false, nil
		case '\r':
			if p.peek('\n') {
				p.r.ReadByte()
				return sb.String(), true, nil
			}
			if sb.Len() == 0 {
				continue
			}
			return sb.String(), false, nil
		case '\n':
			return sb.String(), true, nil
		case '\\':
			if p.continuation() {
				if sb.Len() == 0 {
					continue
				}
				return sb.String(), false, nil
			}
			if p.peek(' ') || p.peek('\t') {
				c, _ = p.r.ReadByte()
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
}

// continuation consumes newline or CRLF after '\', if any.
func (p *parser) continuation() bool {
	if p.peek('\n') {
		p.r.ReadByte()
		return true
	}
	b, err := p.r.Peek(2)
	if err == nil && b[0] == '\r' && b[1] == '\n' {
		p.r.Discard(2)
		return true
	}
	return false
}

func (p *parser) peek(c byte) bool {
	b, err := p.r.Peek(1)
	return err == nil && b[0] == c
}
