// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "sync"

// DefaultBufferSize is the default retained window in bytes. 1 MB of
// normalized text covers a long install plus dev-server startup with
// room to spare.
const DefaultBufferSize = 1024 * 1024

// Buffer is a bounded append-only text buffer with a monotonically
// increasing byte offset. Readers remember the offset they have
// consumed and ask for everything since; a reader that fell behind the
// retained window gets the oldest data still held. Safe for concurrent
// use.
type Buffer struct {
	mu       sync.Mutex
	capacity int

	// window holds the retained tail of everything written.
	window []byte

	// start is the absolute offset of window[0].
	start uint64
}

// NewBuffer returns a buffer retaining at most capacity bytes. Use
// DefaultBufferSize for the standard 1 MB window.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// WriteString appends text, discarding the oldest data once the
// retained window exceeds capacity.
func (buffer *Buffer) WriteString(text string) {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	buffer.window = append(buffer.window, text...)
	if overflow := len(buffer.window) - buffer.capacity; overflow > 0 {
		// Copy to a fresh slice so the discarded prefix does not pin
		// the old backing array.
		trimmed := make([]byte, buffer.capacity)
		copy(trimmed, buffer.window[overflow:])
		buffer.window = trimmed
		buffer.start += uint64(overflow)
	}
}

// ReadFrom returns everything written at or after offset. If offset
// predates the retained window, the whole window is returned (the
// reader missed data). Returns nil at or beyond the current offset.
func (buffer *Buffer) ReadFrom(offset uint64) []byte {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	end := buffer.start + uint64(len(buffer.window))
	if offset >= end {
		return nil
	}
	if offset < buffer.start {
		offset = buffer.start
	}
	chunk := make([]byte, end-offset)
	copy(chunk, buffer.window[offset-buffer.start:])
	return chunk
}

// Offset returns the total number of bytes ever written. Readers store
// it and pass it to ReadFrom to resume.
func (buffer *Buffer) Offset() uint64 {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.start + uint64(len(buffer.window))
}

// String returns the entire retained window.
func (buffer *Buffer) String() string {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return string(buffer.window)
}
