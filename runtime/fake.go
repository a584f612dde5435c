// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/forge-foundation/forge/lib/vfs"
)

// killedExitCode is what a scripted blocking process reports after
// Kill, mirroring a SIGTERM death.
const killedExitCode = 143

// Script describes how the fake behaves for one spawned command line.
type Script struct {
	// Output chunks delivered on the process output channel, in order.
	Output []string

	// ExitCode is the process exit code once Output is drained.
	ExitCode int

	// SpawnErr makes Spawn itself fail.
	SpawnErr error

	// Block keeps the process alive after draining Output until Kill.
	// Dev servers script this; installers do not.
	Block bool

	// CreatesFiles appear in the sandbox filesystem when the process
	// exits on its own (not when killed), e.g. node_modules contents
	// materializing after an install.
	CreatesFiles map[string]string
}

// Fake is a scripted in-memory Runtime for tests.
type Fake struct {
	mu        sync.Mutex
	handle    *FakeHandle
	bootErr   error
	bootCount int
}

// NewFake returns a fake runtime with an empty sandbox.
func NewFake() *Fake {
	return &Fake{handle: newFakeHandle()}
}

// FailBoot makes the next Boot calls fail with err.
func (fake *Fake) FailBoot(err error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.bootErr = err
}

// BootCount reports how many times Boot succeeded.
func (fake *Fake) BootCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.bootCount
}

// Handle returns the fake's single sandbox instance for scripting and
// inspection, without going through Boot.
func (fake *Fake) Handle() *FakeHandle { return fake.handle }

// Boot implements Runtime.
func (fake *Fake) Boot(ctx context.Context) (Handle, error) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.bootErr != nil {
		return nil, fake.bootErr
	}
	fake.bootCount++
	return fake.handle, nil
}

// FakeHandle is the fake's sandbox instance: a flat path→contents map
// plus scripted process behavior.
type FakeHandle struct {
	mu          sync.Mutex
	files       map[string]string
	scripts     map[string]Script
	defaults    Script
	mountErr    error
	mountCount  int
	spawnedList []string
	sweeps      [][]string
	sweepErr    error
	serverReady chan ServerReadyEvent
	closed      bool
}

func newFakeHandle() *FakeHandle {
	return &FakeHandle{
		files:       make(map[string]string),
		scripts:     make(map[string]Script),
		serverReady: make(chan ServerReadyEvent, 4),
	}
}

// ScriptCommand installs behavior for an exact command line, e.g.
// "npm install --no-audit". Unscripted commands run the zero Script
// (no output, exit 0).
func (handle *FakeHandle) ScriptCommand(commandLine string, script Script) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.scripts[commandLine] = script
}

// FailMount makes subsequent Mount calls fail with err.
func (handle *FakeHandle) FailMount(err error) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.mountErr = err
}

// MountCount reports how many times Mount succeeded.
func (handle *FakeHandle) MountCount() int {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.mountCount
}

// Spawned returns the command lines spawned so far, in order.
func (handle *FakeHandle) Spawned() []string {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return append([]string(nil), handle.spawnedList...)
}

// PutFile seeds a file directly into the sandbox filesystem.
func (handle *FakeHandle) PutFile(path, contents string) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.files[path] = contents
}

// EmitServerReady delivers a runtime server-ready notification.
func (handle *FakeHandle) EmitServerReady(port int, url string) {
	handle.serverReady <- ServerReadyEvent{Port: port, URL: url}
}

// Mount implements Handle by flattening the tree into the path map.
func (handle *FakeHandle) Mount(ctx context.Context, root *vfs.Directory) error {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.mountErr != nil {
		return handle.mountErr
	}
	err := root.Walk(func(path string, file vfs.File) error {
		handle.files[path] = file.Contents
		return nil
	})
	if err != nil {
		return err
	}
	handle.mountCount++
	return nil
}

// ReadFile implements Handle.
func (handle *FakeHandle) ReadFile(ctx context.Context, path string) (string, error) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	contents, ok := handle.files[strings.Trim(path, "/")]
	if !ok {
		return "", fmt.Errorf("%q: %w", path, ErrNotFound)
	}
	return contents, nil
}

// ReadDir implements Handle: entry names directly under path,
// derived from the flat map.
func (handle *FakeHandle) ReadDir(ctx context.Context, path string) ([]string, error) {
	handle.mu.Lock()
	defer handle.mu.Unlock()

	prefix := strings.Trim(path, "/")
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]bool)
	for filePath := range handle.files {
		if !strings.HasPrefix(filePath, prefix) {
			continue
		}
		name, _, _ := strings.Cut(filePath[len(prefix):], "/")
		seen[name] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%q: %w", path, ErrNotFound)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Spawn implements Handle with the scripted behavior for the command
// line.
func (handle *FakeHandle) Spawn(ctx context.Context, command string, args []string) (Process, error) {
	commandLine := command
	if len(args) > 0 {
		commandLine += " " + strings.Join(args, " ")
	}

	handle.mu.Lock()
	script, scripted := handle.scripts[commandLine]
	if !scripted {
		script = handle.defaults
	}
	if script.SpawnErr != nil {
		handle.mu.Unlock()
		return nil, script.SpawnErr
	}
	handle.spawnedList = append(handle.spawnedList, commandLine)
	handle.mu.Unlock()

	process := &fakeProcess{
		output: make(chan []byte),
		done:   make(chan struct{}),
		killed: make(chan struct{}),
	}
	go process.run(handle, script)
	return process, nil
}

// KillStrayProcesses implements Handle. The fake records the sweep
// and reports the configured error, if any.
func (handle *FakeHandle) KillStrayProcesses(ctx context.Context, names ...string) error {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.sweeps = append(handle.sweeps, append([]string(nil), names...))
	return handle.sweepErr
}

// FailStraySweep makes KillStrayProcesses report err.
func (handle *FakeHandle) FailStraySweep(err error) {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.sweepErr = err
}

// Sweeps returns the KillStrayProcesses calls observed so far.
func (handle *FakeHandle) Sweeps() [][]string {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return append([][]string(nil), handle.sweeps...)
}

// ServerReady implements Handle.
func (handle *FakeHandle) ServerReady() <-chan ServerReadyEvent {
	return handle.serverReady
}

// Close implements Handle.
func (handle *FakeHandle) Close() error {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	if !handle.closed {
		handle.closed = true
		close(handle.serverReady)
	}
	return nil
}

// fakeProcess plays back one Script.
type fakeProcess struct {
	output   chan []byte
	done     chan struct{}
	killed   chan struct{}
	killOnce sync.Once

	// exitCode is written exactly once, before done closes.
	exitCode int
}

func (process *fakeProcess) run(handle *FakeHandle, script Script) {
	defer close(process.output)

	for _, chunk := range script.Output {
		select {
		case process.output <- []byte(chunk):
		case <-process.killed:
			process.exitCode = killedExitCode
			close(process.done)
			return
		}
	}

	if script.Block {
		<-process.killed
		process.exitCode = killedExitCode
		close(process.done)
		return
	}

	if script.ExitCode == 0 && len(script.CreatesFiles) > 0 {
		handle.mu.Lock()
		for path, contents := range script.CreatesFiles {
			handle.files[path] = contents
		}
		handle.mu.Unlock()
	}
	process.exitCode = script.ExitCode
	close(process.done)
}

// Output implements Process.
func (process *fakeProcess) Output() <-chan []byte { return process.output }

// Wait implements Process.
func (process *fakeProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-process.done:
		return process.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill implements Process.
func (process *fakeProcess) Kill() error {
	process.killOnce.Do(func() { close(process.killed) })
	return nil
}
