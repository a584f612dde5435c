// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"fmt"
	"path"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// ParsedFile is the flattened, UI-facing view of one FileAction:
// everything an editor pane needs to render the file.
type ParsedFile struct {
	// ID is stable for a given artifact and file position: re-parsing
	// the same document always regenerates the same IDs.
	ID string

	// Name is the base name of the file.
	Name string

	// Path is the normalized project-relative path.
	Path string

	// Content is the file's contents.
	Content string

	// Language is the lowercase language name detected from the file
	// name, or "text" when nothing matches. Used for syntax
	// highlighting downstream.
	Language string
}

// Files returns one ParsedFile per FileAction in the artifact, in
// action order. Shell actions do not contribute entries.
func Files(artifact Artifact) []ParsedFile {
	var files []ParsedFile
	for _, act := range artifact.Actions {
		fileAction, ok := act.(FileAction)
		if !ok {
			continue
		}
		files = append(files, ParsedFile{
			ID:       fmt.Sprintf("%s-file-%d", artifact.ID, len(files)),
			Name:     path.Base(fileAction.Path),
			Path:     fileAction.Path,
			Content:  fileAction.Content,
			Language: DetectLanguage(fileAction.Path),
		})
	}
	return files
}

// DetectLanguage maps a file name to a lowercase language identifier
// using chroma's lexer registry. Unrecognized names fall back to
// "text".
func DetectLanguage(filePath string) string {
	lexer := lexers.Match(path.Base(filePath))
	if lexer == nil {
		return "text"
	}
	return strings.ToLower(lexer.Config().Name)
}
