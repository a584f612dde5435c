// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"strings"
	"testing"
)

func TestNormalizeStripsColorAndCursorSequences(t *testing.T) {
	t.Parallel()

	raw := "\x1b[32madded\x1b[0m 12 packages \x1b[1A\x1b[2K"
	if got := Normalize(raw); got != "added 12 packages " {
		t.Errorf("Normalize = %q", got)
	}
}

func TestNormalizeRemovesCarriageReturns(t *testing.T) {
	t.Parallel()

	// Installer progress bars redraw the same line with \r.
	raw := "downloading 10%\rdownloading 50%\rdone\r\n"
	if got := Normalize(raw); got != "downloading 10%downloading 50%done\n" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestNormalizePlainTextUntouched(t *testing.T) {
	t.Parallel()

	raw := "vite v5.0.0 dev server running\n"
	if got := Normalize(raw); got != raw {
		t.Errorf("Normalize changed plain text: %q", got)
	}
}

func TestReadyDetectorFiresOnce(t *testing.T) {
	t.Parallel()

	detector := NewReadyDetector()

	if detector.Detect("Compiling...\n") {
		t.Error("compiling output should not be ready")
	}
	if !detector.Detect("Local: http://localhost:3000\n") {
		t.Error("localhost banner should be ready")
	}
	// A second matching chunk must not re-trigger the transition.
	if detector.Detect("ready - started server on http://localhost:3000\n") {
		t.Error("detector fired twice in one lifecycle")
	}

	detector.Reset()
	if !detector.Detect("ready in 230ms\n") {
		t.Error("detector should re-arm after Reset")
	}
}

func TestReadyDetectorCaseInsensitive(t *testing.T) {
	t.Parallel()

	detector := NewReadyDetector()
	if !detector.Detect("LISTENING ON PORT 8080") {
		t.Error("matching should be case-insensitive")
	}
}

func TestReadyDetectorExtraMarkers(t *testing.T) {
	t.Parallel()

	detector := NewReadyDetector("App Running At")
	if !detector.Detect("app running at :4000") {
		t.Error("extra marker should match case-insensitively")
	}
}

func TestExtractURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"ready - started server on http://localhost:3001", "http://localhost:3001"},
		{"Local:   https://127.0.0.1:5173/ ", "https://127.0.0.1:5173/"},
		{"see http://localhost:3000.", "http://localhost:3000"},
		{"no address here", ""},
	}
	for _, c := range cases {
		if got := ExtractURL(c.in); got != c.want {
			t.Errorf("ExtractURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBufferOffsets(t *testing.T) {
	t.Parallel()

	buffer := NewBuffer(DefaultBufferSize)
	buffer.WriteString("hello ")
	mark := buffer.Offset()
	buffer.WriteString("world")

	if got := string(buffer.ReadFrom(0)); got != "hello world" {
		t.Errorf("ReadFrom(0) = %q", got)
	}
	if got := string(buffer.ReadFrom(mark)); got != "world" {
		t.Errorf("ReadFrom(mark) = %q", got)
	}
	if got := buffer.ReadFrom(buffer.Offset()); got != nil {
		t.Errorf("ReadFrom(current) = %q, want nil", got)
	}
}

func TestBufferEviction(t *testing.T) {
	t.Parallel()

	buffer := NewBuffer(8)
	buffer.WriteString("abcdefgh")
	buffer.WriteString("XYZ")

	// Window keeps the newest 8 bytes.
	if got := buffer.String(); got != "defghXYZ" {
		t.Errorf("String = %q, want defghXYZ", got)
	}
	// A reader holding an evicted offset gets the oldest retained data.
	if got := string(buffer.ReadFrom(0)); got != "defghXYZ" {
		t.Errorf("ReadFrom(0) = %q, want defghXYZ", got)
	}
	if buffer.Offset() != 11 {
		t.Errorf("Offset = %d, want 11", buffer.Offset())
	}
}

func TestBufferLargeWrite(t *testing.T) {
	t.Parallel()

	buffer := NewBuffer(4)
	buffer.WriteString(strings.Repeat("ab", 10))
	if got := buffer.String(); got != "abab" {
		t.Errorf("String = %q, want abab", got)
	}
}
