// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"regexp"
	"strings"
	"sync"
)

// defaultReadyMarkers are the textual signals that a dev server is
// accepting connections. Matching is case-insensitive substring; dev
// tools phrase their banners every which way.
var defaultReadyMarkers = []string{
	"ready",
	"listening on",
	"started server on",
	"localhost:",
	"127.0.0.1:",
	"local:",
}

// urlPattern matches the first http(s) URL in a chunk, used to surface
// the served address from a ready banner.
var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// ReadyDetector watches output chunks for readiness signals. Detection
// fires at most once per server lifecycle: once a chunk matches,
// further matches are ignored until Reset. Safe for concurrent use.
type ReadyDetector struct {
	mu      sync.Mutex
	markers []string
	fired   bool
}

// NewReadyDetector returns a detector using the default marker set
// plus any extra markers (already lowercased or not, either works).
func NewReadyDetector(extraMarkers ...string) *ReadyDetector {
	markers := make([]string, 0, len(defaultReadyMarkers)+len(extraMarkers))
	markers = append(markers, defaultReadyMarkers...)
	for _, marker := range extraMarkers {
		markers = append(markers, strings.ToLower(marker))
	}
	return &ReadyDetector{markers: markers}
}

// Detect reports whether chunk carries a readiness signal and this is
// the first such signal since the last Reset. Later matching chunks
// return false: the ready transition happens exactly once per run.
func (detector *ReadyDetector) Detect(chunk string) bool {
	detector.mu.Lock()
	defer detector.mu.Unlock()

	if detector.fired {
		return false
	}
	lowered := strings.ToLower(chunk)
	for _, marker := range detector.markers {
		if strings.Contains(lowered, marker) {
			detector.fired = true
			return true
		}
	}
	return false
}

// Reset re-arms the detector for the next server lifecycle.
func (detector *ReadyDetector) Reset() {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	detector.fired = false
}

// ExtractURL returns the first http(s) URL in text with trailing
// punctuation trimmed, or "" when none is present.
func ExtractURL(text string) string {
	url := urlPattern.FindString(text)
	return strings.TrimRight(url, ".,;:)")
}
