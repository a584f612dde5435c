// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/forge-foundation/forge/lib/step"
)

var (
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Underline(true)
)

// renderer prints a line whenever a step changes status. It keeps the
// last seen status per id so streaming output updates (which also
// notify subscribers) do not repeat lines.
type renderer struct {
	out  io.Writer
	seen map[string]step.Status
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, seen: make(map[string]step.Status)}
}

// run consumes tracker snapshots until the channel closes.
func (render *renderer) run(updates <-chan []step.Step) {
	for snapshot := range updates {
		for _, entry := range snapshot {
			if render.seen[entry.ID] == entry.Status {
				continue
			}
			render.seen[entry.ID] = entry.Status
			fmt.Fprintf(render.out, "%s %s\n", statusGlyph(entry.Status), entry.Name)
			if entry.Status == step.Error && entry.Output != "" {
				fmt.Fprintln(render.out, errorStyle.Render("  "+lastLine(entry.Output)))
			}
		}
	}
}

func statusGlyph(status step.Status) string {
	switch status {
	case step.Running:
		return runningStyle.Render("…")
	case step.Success:
		return successStyle.Render("✓")
	case step.Error:
		return errorStyle.Render("✗")
	default:
		return idleStyle.Render("·")
	}
}

// lastLine returns the final non-empty line of text, which for process
// output is usually the interesting diagnostic.
func lastLine(text string) string {
	last := ""
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			if line := text[start:i]; line != "" {
				last = line
			}
			start = i + 1
		}
	}
	return last
}
