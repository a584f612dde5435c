// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package local is a host-process sandbox runtime: the project mounts
// into a directory on disk and commands run as ordinary child
// processes rooted there. It provides none of the isolation a real
// sandbox does; it exists so forge-run works on a developer machine
// and in integration tests without a sandbox service.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/forge-foundation/forge/lib/vfs"
	"github.com/forge-foundation/forge/runtime"
)

// Runtime boots host-directory sandboxes.
type Runtime struct {
	// root is the mount directory. Empty means a fresh temp dir per
	// boot, removed on Close.
	root string
}

// New returns a local runtime mounting into root. Pass "" for a
// temporary directory owned by the handle.
func New(root string) *Runtime {
	return &Runtime{root: root}
}

// Boot implements runtime.Runtime.
func (local *Runtime) Boot(ctx context.Context) (runtime.Handle, error) {
	root := local.root
	ephemeral := false
	if root == "" {
		tempDir, err := os.MkdirTemp("", "forge-sandbox-")
		if err != nil {
			return nil, fmt.Errorf("local: creating sandbox root: %w", err)
		}
		root = tempDir
		ephemeral = true
	} else if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local: creating sandbox root: %w", err)
	}

	return &handle{
		root:        root,
		ephemeral:   ephemeral,
		serverReady: make(chan runtime.ServerReadyEvent),
	}, nil
}

// handle is one booted local sandbox.
type handle struct {
	root      string
	ephemeral bool

	mu        sync.Mutex
	processes []*process
	closed    bool

	// serverReady never delivers: the local runtime has no structured
	// readiness channel, so readiness comes from textual detection
	// upstream.
	serverReady chan runtime.ServerReadyEvent
}

// Mount implements runtime.Handle by writing the tree under root.
func (sandbox *handle) Mount(ctx context.Context, root *vfs.Directory) error {
	return root.Walk(func(path string, file vfs.File) error {
		target := filepath.Join(sandbox.root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("local: creating %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, []byte(file.Contents), 0o644); err != nil {
			return fmt.Errorf("local: writing %s: %w", path, err)
		}
		return nil
	})
}

// ReadFile implements runtime.Handle.
func (sandbox *handle) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(sandbox.root, filepath.FromSlash(path)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%q: %w", path, runtime.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("local: reading %s: %w", path, err)
	}
	return string(data), nil
}

// ReadDir implements runtime.Handle.
func (sandbox *handle) ReadDir(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(sandbox.root, filepath.FromSlash(path)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%q: %w", path, runtime.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local: listing %s: %w", path, err)
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names, nil
}

// Spawn implements runtime.Handle. The child runs in its own process
// group so Kill reaches the whole tree, not just the immediate child;
// package managers and dev servers fork freely.
func (sandbox *handle) Spawn(ctx context.Context, command string, args []string) (runtime.Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = sandbox.root
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pipeReader, pipeWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("local: creating output pipe: %w", err)
	}
	cmd.Stdout = pipeWriter
	cmd.Stderr = pipeWriter

	if err := cmd.Start(); err != nil {
		pipeReader.Close()
		pipeWriter.Close()
		return nil, fmt.Errorf("local: starting %s: %w", command, err)
	}
	// The child holds its own copy of the write end.
	pipeWriter.Close()

	proc := &process{
		cmd:         cmd,
		commandName: command,
		output:      make(chan []byte),
		done:        make(chan struct{}),
	}
	go proc.pumpOutput(pipeReader)
	go proc.awaitExit()

	sandbox.mu.Lock()
	sandbox.processes = append(sandbox.processes, proc)
	sandbox.mu.Unlock()
	return proc, nil
}

// KillStrayProcesses implements runtime.Handle: it sweeps processes
// this handle spawned that are still alive and whose command matches
// one of names. An empty sweep is success.
func (sandbox *handle) KillStrayProcesses(ctx context.Context, names ...string) error {
	sandbox.mu.Lock()
	tracked := append([]*process(nil), sandbox.processes...)
	sandbox.mu.Unlock()

	for _, proc := range tracked {
		if !proc.alive() {
			continue
		}
		base := filepath.Base(proc.commandName)
		for _, name := range names {
			if base == name {
				proc.Kill()
				break
			}
		}
	}
	return nil
}

// ServerReady implements runtime.Handle.
func (sandbox *handle) ServerReady() <-chan runtime.ServerReadyEvent {
	return sandbox.serverReady
}

// Close implements runtime.Handle: kills everything still running and
// removes an ephemeral root.
func (sandbox *handle) Close() error {
	sandbox.mu.Lock()
	if sandbox.closed {
		sandbox.mu.Unlock()
		return nil
	}
	sandbox.closed = true
	tracked := append([]*process(nil), sandbox.processes...)
	sandbox.mu.Unlock()

	for _, proc := range tracked {
		proc.Kill()
	}
	close(sandbox.serverReady)
	if sandbox.ephemeral {
		return os.RemoveAll(sandbox.root)
	}
	return nil
}

// process is one spawned child.
type process struct {
	cmd         *exec.Cmd
	commandName string
	output      chan []byte
	done        chan struct{}
	killOnce    sync.Once

	// exitCode is valid once done is closed.
	exitCode int
}

// pumpOutput forwards pipe reads to the output channel until EOF,
// which arrives when the process (and any children holding the pipe)
// exit.
func (proc *process) pumpOutput(pipeReader *os.File) {
	defer pipeReader.Close()
	defer close(proc.output)

	buffer := make([]byte, 4096)
	for {
		n, err := pipeReader.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			proc.output <- chunk
		}
		if err != nil {
			// EOF and pipe errors both end the stream; the exit code
			// tells the real story.
			return
		}
	}
}

// awaitExit records the exit code and closes done.
func (proc *process) awaitExit() {
	err := proc.cmd.Wait()
	code := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			code = exitError.ExitCode()
		} else {
			code = -1
		}
	}
	proc.exitCode = code
	close(proc.done)
}

// alive reports whether the process has not yet exited.
func (proc *process) alive() bool {
	select {
	case <-proc.done:
		return false
	default:
		return true
	}
}

// Output implements runtime.Process.
func (proc *process) Output() <-chan []byte { return proc.output }

// Wait implements runtime.Process.
func (proc *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-proc.done:
		return proc.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill implements runtime.Process: SIGKILL to the process group, so
// children die with the shell. A dead process group is fine.
func (proc *process) Kill() error {
	proc.killOnce.Do(func() {
		if proc.cmd.Process != nil {
			_ = syscall.Kill(-proc.cmd.Process.Pid, syscall.SIGKILL)
		}
	})
	return nil
}
