// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"errors"

	"github.com/forge-foundation/forge/lib/vfs"
)

// ErrNotFound is the not-found condition for ReadFile and ReadDir.
var ErrNotFound = errors.New("runtime: not found")

// ServerReadyEvent is the runtime's own notification that a server
// inside the sandbox started accepting connections.
type ServerReadyEvent struct {
	Port int
	URL  string
}

// Runtime boots sandbox instances. Implementations may or may not
// support more than one live instance; the orchestrator only ever
// holds one.
type Runtime interface {
	// Boot acquires a sandbox instance. The returned Handle is owned
	// by the caller until Close.
	Boot(ctx context.Context) (Handle, error)
}

// Handle is one booted sandbox instance.
type Handle interface {
	// Mount writes the tree into the sandbox filesystem, creating
	// directories as needed and overwriting existing files. Files
	// already present in the sandbox but absent from the tree are
	// left alone.
	Mount(ctx context.Context, root *vfs.Directory) error

	// ReadFile returns the contents at path, or an error wrapping
	// ErrNotFound when absent.
	ReadFile(ctx context.Context, path string) (string, error)

	// ReadDir returns the entry names at path, or an error wrapping
	// ErrNotFound when absent.
	ReadDir(ctx context.Context, path string) ([]string, error)

	// Spawn starts a process in the sandbox.
	Spawn(ctx context.Context, command string, args []string) (Process, error)

	// KillStrayProcesses terminates processes in the sandbox whose
	// command matches one of names (interpreters, package managers
	// left behind by a dev server). Finding nothing to kill is
	// success, not an error; the contract is best-effort sweep.
	KillStrayProcesses(ctx context.Context, names ...string) error

	// ServerReady delivers the runtime's server-ready notifications.
	// The channel is owned by the handle and closed on Close.
	ServerReady() <-chan ServerReadyEvent

	// Close releases the sandbox instance.
	Close() error
}

// Process is a spawned sandbox process.
type Process interface {
	// Output delivers combined stdout/stderr chunks in the order the
	// runtime produced them. The channel closes when the process
	// exits.
	Output() <-chan []byte

	// Wait blocks until the process exits and returns its exit code.
	// The error reports context cancellation or runtime failure, not
	// a non-zero exit.
	Wait(ctx context.Context) (int, error)

	// Kill terminates the process. Killing an already-exited process
	// is a no-op.
	Kill() error
}
