// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ui provides user interface functionalities.
package ui

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/term"
)

// Spinner shows progress of a long operation.
type Spinner interface {
	// Start starts the spinner with the specified formatted string.
	Start(format string, args ...any)
	// Stop stops the spinner, outputting an error if provided.
	Stop(err error)
	// Done finishes the spinner with message.
	Done(format string, args ...any)
}

// UI is a user interface.
type UI interface {
	// PrintLines prints message lines.
	// If msgs starts with \n, it will print from the current line.
	// Otherwise, it will replaces the last N lines, where N is len(msgs).
	PrintLines(msgs ...string)
	// NewSpinner returns a new spinner.
	NewSpinner() Spinner
}

// Default holds the default UI interface.
// Set it before the build starts; implementations don't expect
// to be swapped while in use.
var Default UI

func init() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		termUI := &TermUI{}
		termUI.init()
		Default = termUI
	} else {
		Default = &LogUI{}
	}
}

// IsTerminal returns whether currently using a terminal UI.
func IsTerminal() bool {
	_, ok := Default.(*TermUI)
	return ok
}

// writeLinesMaxWidth writes msgs separated by newlines. A single-line
// message wider than width is elided in the middle.
func writeLinesMaxWidth(buf *bytes.Buffer, msgs []string, width int) {
	for i, msg := range msgs {
		if msg == "" {
			continue
		}
		line, nl := strings.CutSuffix(msg, "\n")
		if width > 4 && !strings.Contains(line, "\n") {
			line = elideMiddle(line, width)
			if nl {
				line += "\n"
			}
			msg = line
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(msg)
	}
}

// elideMiddle shortens msg to fit in width columns by replacing its
// middle with "...". Escape codes are dropped from an elided message.
func elideMiddle(msg string, width int) string {
	plain := StripANSIEscapeCodes(msg)
	if len(plain) < width {
		return msg
	}
	n := (width - 4) / 2
	return plain[:n] + "..." + plain[len(plain)-n:]
}

// SGRCode is a select graphic rendition attribute used in build summaries.
type SGRCode string

// SGR attributes.
const (
	Bold          SGRCode = "1"
	Red           SGRCode = "31;1"
	Green         SGRCode = "32"
	BackgroundRed SGRCode = "41;37"
	Reset         SGRCode = "0"
)

func (s SGRCode) String() string {
	return "\033[" + string(s) + "m"
}

// SGR wraps s with the escape sequence of n, followed by a reset.
func SGR(n SGRCode, s string) string {
	return n.String() + s + Reset.String()
}

// StripANSIEscapeCodes strips ANSI escape codes.
func StripANSIEscapeCodes(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\033' {
			// not an escape code.
			sb.WriteByte(s[i])
			continue
		}
		// Only strip CSIs for now.
		if i+1 >= len(s) {
			break
		}
		if s[i+1] != '[' {
			// Not a CSI.
			continue
		}
		i += 2

		// Skip everything up to and including the next [a-zA-Z].
		for i < len(s) && !((s[i] >= 'a' && s[i] <= 'z') || s[i] >= 'A' && s[i] <= 'Z') {
			i++
		}
	}
	return sb.String()
}
