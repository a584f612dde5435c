// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"fmt"
	"path"
	"strings"

	"github.com/forge-foundation/forge/lib/markup"
)

// Artifact is a titled, identified bundle of build actions parsed from
// one model response. Action order is exactly source emission order;
// it determines mount and execution order downstream.
type Artifact struct {
	ID      string
	Title   string
	Actions []Action
}

// Action is a single build instruction: either a file write or a shell
// command. The two concrete types are FileAction and ShellAction.
type Action interface {
	// isAction restricts implementations to this package, keeping the
	// variant set closed.
	isAction()
}

// FileAction writes Content to Path (relative to the project root,
// no leading separator).
type FileAction struct {
	Path    string
	Content string
}

func (FileAction) isAction() {}

// ShellAction runs a command inside the sandbox runtime. Args carries
// the command line split on whitespace with basic quote handling; full
// shell semantics are out of scope.
type ShellAction struct {
	Command string
	Args    []string
}

func (ShellAction) isAction() {}

// Warning records a per-action parse problem. Warnings are advisory:
// the offending action is dropped and parsing continues.
type Warning struct {
	// Index is the zero-based position of the offending action among
	// all scanned actions.
	Index int

	// Message describes the problem.
	Message string
}

func (warning Warning) String() string {
	return fmt.Sprintf("action %d: %s", warning.Index, warning.Message)
}

// Parse scans text and builds the typed Artifact. The artifact identity
// comes from the first artifact tag; the wire format carries one
// artifact per document, but should a response contain several, their
// actions are folded in source order rather than discarded.
//
// Parse is deterministic: the same text always yields the same Artifact
// and the same warning list.
func Parse(text string) (Artifact, []Warning) {
	return Build(markup.ScanArtifacts(text))
}

// Build maps scanned tag occurrences to typed Actions under the
// enclosing artifact identity. Unknown action types and file actions
// with an empty path are dropped with a recorded warning.
func Build(tags []markup.ArtifactTag) (Artifact, []Warning) {
	var artifact Artifact
	var warnings []Warning

	if len(tags) > 0 {
		artifact.ID = tags[0].ID
		artifact.Title = tags[0].Title
	}

	index := 0
	for _, tag := range tags {
		for _, raw := range tag.Actions {
			built, warning := buildOne(index, raw)
			if warning != nil {
				warnings = append(warnings, *warning)
			} else {
				artifact.Actions = append(artifact.Actions, built)
			}
			index++
		}
	}
	return artifact, warnings
}

// buildOne converts a single scanned action tag. Returns the action or
// a warning, never both.
func buildOne(index int, raw markup.ActionTag) (Action, *Warning) {
	switch raw.Type {
	case "file":
		cleaned, ok := NormalizePath(raw.FilePath)
		if !ok {
			return nil, &Warning{Index: index, Message: fmt.Sprintf("file action with unusable path %q dropped", raw.FilePath)}
		}
		return FileAction{Path: cleaned, Content: raw.Body}, nil

	case "shell":
		command, args := splitCommandLine(raw.Body)
		if command == "" {
			return nil, &Warning{Index: index, Message: "shell action with empty command dropped"}
		}
		return ShellAction{Command: command, Args: args}, nil

	default:
		return nil, &Warning{Index: index, Message: fmt.Sprintf("unknown action type %q dropped", raw.Type)}
	}
}

// NormalizePath cleans a markup file path: leading separators are
// stripped so "/a/b.ts" and "a/b.ts" resolve to the same location, and
// redundant separators and dot segments collapse. Returns ok=false for
// paths that do not name a file inside the project (empty, ".", or
// escaping upward).
func NormalizePath(filePath string) (string, bool) {
	cleaned := path.Clean(strings.TrimLeft(filePath, "/"))
	if cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// splitCommandLine splits a shell command line into command and
// arguments. Double and single quotes group words; everything else
// splits on whitespace. This intentionally stops far short of shell
// semantics (no expansion, no operators); the runtime receives the
// words as-is.
func splitCommandLine(line string) (string, []string) {
	var words []string
	var current strings.Builder
	inWord := false
	var quote byte

	flush := func() {
		if inWord {
			words = append(words, current.String())
			current.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inWord = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			current.WriteByte(c)
			inWord = true
		}
	}
	flush()

	if len(words) == 0 {
		return "", nil
	}
	return words[0], words[1:]
}
