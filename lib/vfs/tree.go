// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/forge-foundation/forge/lib/action"
)

// Node is a tree entry: either a *Directory or a File.
type Node interface {
	isNode()
}

// Directory owns a set of named children.
type Directory struct {
	Children map[string]Node
}

func (*Directory) isNode() {}

// File is a leaf holding contents.
type File struct {
	Contents string
}

func (File) isNode() {}

// Sum returns the hex blake3 digest of the file's contents. Mount
// logic compares sums to skip rewriting files unchanged since the
// previous mount of a growing document.
func (file File) Sum() string {
	digest := blake3.Sum256([]byte(file.Contents))
	return hex.EncodeToString(digest[:])
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{Children: make(map[string]Node)}
}

// WriteFile places contents at path, creating intermediate directories
// as needed. Later writes to the same path replace the file. Fails if
// a path segment is already a file, or if a directory already exists
// where the file itself should go.
func (directory *Directory) WriteFile(path, contents string) error {
	segments := strings.Split(path, "/")
	current := directory
	for _, segment := range segments[:len(segments)-1] {
		child, exists := current.Children[segment]
		if !exists {
			next := NewDirectory()
			current.Children[segment] = next
			current = next
			continue
		}
		next, ok := child.(*Directory)
		if !ok {
			return fmt.Errorf("vfs: %q: path segment %q is a file", path, segment)
		}
		current = next
	}

	name := segments[len(segments)-1]
	if _, isDirectory := current.Children[name].(*Directory); isDirectory {
		return fmt.Errorf("vfs: %q already exists as a directory", path)
	}
	current.Children[name] = File{Contents: contents}
	return nil
}

// Lookup resolves a slash-separated path. A leading separator is
// tolerated: "/a/b" and "a/b" name the same node.
func (directory *Directory) Lookup(path string) (Node, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return directory, true
	}
	var current Node = directory
	for _, segment := range strings.Split(path, "/") {
		dir, ok := current.(*Directory)
		if !ok {
			return nil, false
		}
		child, exists := dir.Children[segment]
		if !exists {
			return nil, false
		}
		current = child
	}
	return current, true
}

// Walk visits every file in the tree in sorted path order, so mounts
// and tests see a deterministic sequence.
func (directory *Directory) Walk(visit func(path string, file File) error) error {
	return directory.walk("", visit)
}

func (directory *Directory) walk(prefix string, visit func(path string, file File) error) error {
	names := make([]string, 0, len(directory.Children))
	for name := range directory.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		switch child := directory.Children[name].(type) {
		case *Directory:
			if err := child.walk(path, visit); err != nil {
				return err
			}
		case File:
			if err := visit(path, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildTree assembles the nested tree from the FileActions in actions,
// in source order (a later write to the same path wins). Shell actions
// are ignored.
func BuildTree(actions []action.Action) (*Directory, error) {
	root := NewDirectory()
	for _, act := range actions {
		fileAction, ok := act.(action.FileAction)
		if !ok {
			continue
		}
		if err := root.WriteFile(fileAction.Path, fileAction.Content); err != nil {
			return nil, err
		}
	}
	return root, nil
}
