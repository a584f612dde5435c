// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/forge-foundation/forge/lib/action"
)

// ManifestPath is the package manifest location every project mount is
// guaranteed to contain.
const ManifestPath = "package.json"

// Manifest is the subset of package.json this system inspects.
type Manifest struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Scripts map[string]string `json:"scripts"`
}

// HasManifest reports whether any FileAction targets the manifest
// path.
func HasManifest(actions []action.Action) bool {
	for _, act := range actions {
		if fileAction, ok := act.(action.FileAction); ok && fileAction.Path == ManifestPath {
			return true
		}
	}
	return false
}

// synthesizedManifest is the manifest emitted when the model's actions
// never wrote one: module type, the conventional script set, and the
// dev-server toolchain so an install step always has something to act
// on.
type synthesizedManifest struct {
	Name            string            `json:"name"`
	Private         bool              `json:"private"`
	Version         string            `json:"version"`
	Type            string            `json:"type"`
	Scripts         map[string]string `json:"scripts"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// SynthesizeManifest returns the default manifest FileAction for a
// project. name is free-form human text; it is lowered to a valid npm
// package name, falling back to "forge-project" when nothing usable
// remains.
func SynthesizeManifest(name string) action.FileAction {
	manifest := synthesizedManifest{
		Name:    packageName(name),
		Private: true,
		Version: "0.0.0",
		Type:    "module",
		Scripts: map[string]string{
			"dev":     "vite",
			"build":   "vite build",
			"preview": "vite preview",
			"start":   "vite",
		},
		DevDependencies: map[string]string{
			"vite": "^5.4.0",
		},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		// Plain strings and string maps always marshal.
		panic("vfs: synthesizing manifest: " + err.Error())
	}
	return action.FileAction{
		Path:    ManifestPath,
		Content: string(data) + "\n",
	}
}

// packageName lowers a free-form project name into a valid npm package
// name: lowercase, with each run of disallowed characters collapsed to
// a single "-". Separator characters never lead or trail the result.
func packageName(name string) string {
	var out []byte
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, byte(r))
		case len(out) > 0 && out[len(out)-1] != '-':
			out = append(out, '-')
		}
	}
	slug := strings.Trim(string(out), "-._")
	if slug == "" {
		return "forge-project"
	}
	return slug
}

// ParseManifest decodes manifest contents. Comments and trailing
// commas are tolerated; models occasionally emit them even though
// package.json is nominally strict JSON.
func ParseManifest(contents string) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(jsonc.ToJSON([]byte(contents)), &manifest); err != nil {
		return Manifest{}, fmt.Errorf("vfs: parsing manifest: %w", err)
	}
	return manifest, nil
}
