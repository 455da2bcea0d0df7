// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"bytes"
	"testing"
)

func TestElideMiddle(t *testing.T) {
	for _, tc := range []struct {
		msg   string
		width int
		want  string
	}{
		{
			msg:   "[12/340] cc -c -o out/obj/third_party/zlib/contrib/optimizations/inflate.o third_party/zlib/contrib/optimizations/inflate.c",
			width: 60,
			want:  "[12/340] cc -c -o out/obj/th...trib/optimizations/inflate.c",
		},
		{
			msg:   "\033[31;1mFAILED: out/a.o 1.20s\033[0m",
			width: 80,
			want:  "\033[31;1mFAILED: out/a.o 1.20s\033[0m",
		},
		{
			msg:   "jobs: 0 done:\033[41m653\033[0m total:\033[41m12345\033[0m",
			width: 18,
			want:  "jobs: 0...l:12345",
		},
	} {
		got := elideMiddle(tc.msg, tc.width)
		if got != tc.want {
			t.Errorf("elideMiddle(%q, %d)=%q; want %q\nmsg:\n%s\ngot:\n%s", tc.msg, tc.width, got, tc.want, tc.msg, got)
		}
	}
}

func TestWriteLinesMaxWidth(t *testing.T) {
	var buf bytes.Buffer
	writeLinesMaxWidth(&buf, []string{"0123456789abcdef\n", "", "multi\nline output that is long"}, 12)
	want := "0123...cdef\n\nmulti\nline output that is long"
	if got := buf.String(); got != want {
		t.Errorf("writeLinesMaxWidth=%q; want %q", got, want)
	}
}
