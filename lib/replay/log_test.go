// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/forge-foundation/forge/lib/action"
)

func sessionID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse("6a1f0e26-9a7e-4c7d-9f2a-3d8b54a1c001")
	if err != nil {
		t.Fatalf("parsing uuid: %v", err)
	}
	return id
}

func writeSample(t *testing.T, buffer *bytes.Buffer) {
	t.Helper()
	writer, err := NewWriter(buffer, Header{
		SessionID:     sessionID(t),
		ArtifactID:    "demo-app",
		ArtifactTitle: "Demo App",
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	actions := []action.Action{
		action.FileAction{Path: "package.json", Content: "{}"},
		action.FileAction{Path: "src/index.js", Content: "console.log(1)"},
		action.ShellAction{Command: "npm", Args: []string{"install"}},
	}
	for _, act := range actions {
		if err := writer.RecordAction(act); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	writeSample(t, &buffer)

	reader, err := NewReader(&buffer)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if reader.Header().ArtifactID != "demo-app" {
		t.Errorf("header artifact = %q", reader.Header().ArtifactID)
	}
	if reader.Header().SessionID != sessionID(t) {
		t.Errorf("header session = %v", reader.Header().SessionID)
	}

	var kinds []Kind
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		kinds = append(kinds, record.Kind)
	}
	want := []Kind{KindFile, KindFile, KindShell}
	if len(kinds) != len(want) {
		t.Fatalf("record count = %d, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("record %d kind = %s, want %s", i, kinds[i], want[i])
		}
	}
}

// TestByteDeterminism is the property the replay log exists for:
// identical sessions serialize to identical bytes.
func TestByteDeterminism(t *testing.T) {
	t.Parallel()

	var first, second bytes.Buffer
	writeSample(t, &first)
	writeSample(t, &second)
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("two identical sessions produced different log bytes")
	}
}
