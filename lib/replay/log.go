// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/forge-foundation/forge/lib/action"
	"github.com/forge-foundation/forge/lib/codec"
	"github.com/forge-foundation/forge/lib/step"
)

// Kind discriminates record variants.
type Kind string

const (
	// KindFile is a file-write action record.
	KindFile Kind = "file"
	// KindShell is a shell-command action record.
	KindShell Kind = "shell"
	// KindStep is a step status transition record.
	KindStep Kind = "step"
)

// Header opens every log: which session produced it and for which
// artifact.
type Header struct {
	SessionID     uuid.UUID `cbor:"session_id"`
	ArtifactID    string    `cbor:"artifact_id"`
	ArtifactTitle string    `cbor:"artifact_title"`
}

// Record is one logged event. Exactly one of File, Shell, Step is set,
// selected by Kind.
type Record struct {
	Kind  Kind         `cbor:"kind"`
	File  *FileRecord  `cbor:"file,omitempty"`
	Shell *ShellRecord `cbor:"shell,omitempty"`
	Step  *StepRecord  `cbor:"step,omitempty"`
}

// FileRecord mirrors action.FileAction.
type FileRecord struct {
	Path    string `cbor:"path"`
	Content string `cbor:"content"`
}

// ShellRecord mirrors action.ShellAction.
type ShellRecord struct {
	Command string   `cbor:"command"`
	Args    []string `cbor:"args,omitempty"`
}

// StepRecord captures a step transition.
type StepRecord struct {
	ID     string    `cbor:"id"`
	Name   string    `cbor:"name"`
	Status string    `cbor:"status"`
	At     time.Time `cbor:"at"`
}

// Writer appends records to an underlying stream.
type Writer struct {
	encoder *codec.Encoder
}

// NewWriter writes the header and returns a Writer for the session's
// records.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	encoder := codec.NewEncoder(w)
	if err := encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("replay: writing header: %w", err)
	}
	return &Writer{encoder: encoder}, nil
}

// RecordAction appends one build action.
func (writer *Writer) RecordAction(act action.Action) error {
	var record Record
	switch concrete := act.(type) {
	case action.FileAction:
		record = Record{Kind: KindFile, File: &FileRecord{Path: concrete.Path, Content: concrete.Content}}
	case action.ShellAction:
		record = Record{Kind: KindShell, Shell: &ShellRecord{Command: concrete.Command, Args: concrete.Args}}
	default:
		return fmt.Errorf("replay: unsupported action type %T", act)
	}
	return writer.encoder.Encode(record)
}

// RecordStep appends one step transition.
func (writer *Writer) RecordStep(entry step.Step) error {
	return writer.encoder.Encode(Record{
		Kind: KindStep,
		Step: &StepRecord{
			ID:     entry.ID,
			Name:   entry.Name,
			Status: string(entry.Status),
			At:     entry.Timestamp,
		},
	})
}

// Reader replays a log in order.
type Reader struct {
	decoder *codec.Decoder
	header  Header
}

// NewReader decodes the header and returns a Reader positioned at the
// first record.
func NewReader(r io.Reader) (*Reader, error) {
	decoder := codec.NewDecoder(r)
	var header Header
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("replay: reading header: %w", err)
	}
	return &Reader{decoder: decoder, header: header}, nil
}

// Header returns the session header.
func (reader *Reader) Header() Header {
	return reader.header
}

// Next returns the next record, or io.EOF at the end of the log.
func (reader *Reader) Next() (Record, error) {
	var record Record
	err := reader.decoder.Decode(&record)
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("replay: reading record: %w", err)
	}
	return record, nil
}
