// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package markup

import (
	"strings"
)

// Tag markers for the forge markup vocabulary. The open markers omit
// the trailing ">" because opening tags carry attributes.
const (
	artifactOpen  = "<forgeArtifact"
	artifactClose = "</forgeArtifact>"
	actionOpen    = "<forgeAction"
	actionClose   = "</forgeAction>"
)

// ActionTag is a single fully closed forgeAction occurrence. Type and
// FilePath are the raw attribute values; interpretation (and rejection
// of unknown types) belongs to the action builder.
type ActionTag struct {
	// Type is the value of the type attribute ("file", "shell", or
	// anything else the model emitted). Empty if the attribute is
	// missing.
	Type string

	// FilePath is the value of the filePath attribute. Only meaningful
	// for file actions.
	FilePath string

	// Body is the verbatim tag body. A single leading and trailing
	// newline introduced by the markup layout is stripped; everything
	// else is preserved byte for byte.
	Body string
}

// ArtifactTag is an artifact occurrence: the opening tag's identity
// attributes plus every fully closed action seen inside it so far.
type ArtifactTag struct {
	// ID is the artifact's id attribute.
	ID string

	// Title is the artifact's title attribute.
	Title string

	// Actions are the fully closed actions inside this artifact, in
	// source order. Actions whose closing tag has not arrived are not
	// included.
	Actions []ActionTag

	// Closed reports whether the artifact's own closing tag has been
	// seen. An open artifact still reports its closed actions: the
	// stream emits actions incrementally and consumers act on them
	// before the artifact completes.
	Closed bool
}

// ScanArtifacts scans text for artifact occurrences in source order.
// Pass the full accumulated text on every call: the scanner has no
// internal state, and a tag split across chunk boundaries is simply
// invisible until its closing marker arrives.
func ScanArtifacts(text string) []ArtifactTag {
	var artifacts []ArtifactTag

	rest := text
	for {
		start := indexTag(rest, artifactOpen)
		if start < 0 {
			return artifacts
		}

		attrEnd := tagEnd(rest[start:])
		if attrEnd < 0 {
			// The opening tag itself is still arriving. Nothing after
			// this point can be parsed yet.
			return artifacts
		}
		attrs := parseAttributes(rest[start+len(artifactOpen) : start+attrEnd])

		body := rest[start+attrEnd+1:]
		closed := false
		if end := strings.Index(body, artifactClose); end >= 0 {
			rest = body[end+len(artifactClose):]
			body = body[:end]
			closed = true
		} else {
			rest = ""
		}

		artifacts = append(artifacts, ArtifactTag{
			ID:      attrs["id"],
			Title:   attrs["title"],
			Actions: scanActions(body),
			Closed:  closed,
		})

		if !closed {
			return artifacts
		}
	}
}

// scanActions extracts fully closed action occurrences from an artifact
// body. A malformed opening tag (no ">" before the next closing marker)
// is skipped so one broken action does not hide the rest of the
// document.
func scanActions(body string) []ActionTag {
	var actions []ActionTag

	rest := body
	for {
		start := indexTag(rest, actionOpen)
		if start < 0 {
			return actions
		}

		end := strings.Index(rest[start:], actionClose)
		if end < 0 {
			// Closing tag not yet in the buffer: the action is still
			// streaming. Invisible until complete.
			return actions
		}
		end += start

		attrEnd := tagEnd(rest[start:])
		if attrEnd < 0 || start+attrEnd > end {
			// Opening tag never terminated before the close marker.
			// Skip the whole occurrence and keep scanning.
			rest = rest[end+len(actionClose):]
			continue
		}
		attrs := parseAttributes(rest[start+len(actionOpen) : start+attrEnd])

		actions = append(actions, ActionTag{
			Type:     attrs["type"],
			FilePath: attrs["filePath"],
			Body:     trimMarkupNewlines(rest[start+attrEnd+1 : end]),
		})
		rest = rest[end+len(actionClose):]
	}
}

// PlainText extracts the conversational narration from text: everything
// outside artifact and action elements. Complete elements are removed
// with their contents, an element whose closing tag has not arrived is
// removed through the end of the buffer, and a trailing partial opening
// marker (a tag split mid-name across chunks) is stripped. This runs on
// every stream chunk, so it does no attribute or body parsing.
func PlainText(text string) string {
	text = stripElements(text, artifactOpen, artifactClose)
	// Stray actions outside an artifact should not leak into the
	// narration either.
	text = stripElements(text, actionOpen, actionClose)
	return stripTrailingPartialTag(text)
}

// stripElements removes every element delimited by the given markers,
// contents included. An element with no closing marker is removed
// through the end of the text.
func stripElements(text, openMarker, closeMarker string) string {
	var builder strings.Builder

	rest := text
	for {
		start := indexTag(rest, openMarker)
		if start < 0 {
			builder.WriteString(rest)
			return builder.String()
		}
		builder.WriteString(rest[:start])

		end := strings.Index(rest[start:], closeMarker)
		if end < 0 {
			return builder.String()
		}
		rest = rest[start+end+len(closeMarker):]
	}
}

// stripTrailingPartialTag removes an incomplete opening marker at the
// very end of the buffer, e.g. a chunk ending in "<forgeArt". Without
// this the narration would briefly flash the tag prefix before the
// rest of the tag arrives.
func stripTrailingPartialTag(text string) string {
	last := strings.LastIndexByte(text, '<')
	if last < 0 {
		return text
	}
	tail := text[last:]
	if strings.ContainsRune(tail, '>') {
		return text
	}
	for _, marker := range []string{artifactOpen, actionOpen, "</forgeArtifact", "</forgeAction"} {
		if strings.HasPrefix(marker, tail) || strings.HasPrefix(tail, marker) {
			return text[:last]
		}
	}
	return text
}

// indexTag finds the first occurrence of marker in text that is a whole
// tag name, i.e. followed by whitespace, "/", or ">". This keeps
// "<forgeActionable" from matching the forgeAction marker.
func indexTag(text, marker string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], marker)
		if i < 0 {
			return -1
		}
		i += offset
		rest := text[i+len(marker):]
		if rest == "" {
			// Marker at the very end of the buffer: the tag is still
			// arriving, which callers treat the same as absent.
			return -1
		}
		switch rest[0] {
		case ' ', '\t', '\n', '\r', '>', '/':
			return i
		}
		offset = i + len(marker)
	}
}

// tagEnd returns the index of the '>' terminating an opening tag,
// ignoring any '>' inside a quoted attribute value. Returns -1 when no
// terminator is in the buffer yet.
func tagEnd(text string) int {
	inQuote := false
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			inQuote = !inQuote
		case '>':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

// parseAttributes reads key="value" pairs from the attribute region of
// an opening tag. Malformed pairs (no "=", unterminated quote) are
// skipped rather than failing the tag.
func parseAttributes(region string) map[string]string {
	attrs := make(map[string]string)

	rest := region
	for {
		rest = strings.TrimLeft(rest, " \t\n\r")
		if rest == "" {
			return attrs
		}

		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return attrs
		}
		key := strings.TrimRight(rest[:eq], " \t\n\r")
		rest = strings.TrimLeft(rest[eq+1:], " \t\n\r")

		if rest == "" || rest[0] != '"' {
			// Unquoted value: not part of the wire format. Skip to the
			// next whitespace and continue.
			next := strings.IndexAny(rest, " \t\n\r")
			if next < 0 {
				return attrs
			}
			rest = rest[next:]
			continue
		}

		closeQuote := strings.IndexByte(rest[1:], '"')
		if closeQuote < 0 {
			return attrs
		}
		if key != "" {
			attrs[key] = rest[1 : 1+closeQuote]
		}
		rest = rest[closeQuote+2:]
	}
}

// trimMarkupNewlines strips the single leading and trailing newline
// that the markup layout places around a tag body. Interior newlines
// and any further leading/trailing whitespace are content.
func trimMarkupNewlines(body string) string {
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")
	return body
}
