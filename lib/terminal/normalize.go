// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Normalize strips ANSI escape and cursor-control sequences and
// carriage returns from a raw output chunk, leaving plain display
// text. Installers and dev servers redraw progress lines with \r and
// color heavily; none of that survives into step output or the UI
// terminal.
func Normalize(raw string) string {
	stripped := ansi.Strip(raw)
	if !strings.ContainsRune(stripped, '\r') {
		return stripped
	}
	return strings.ReplaceAll(stripped, "\r", "")
}
