// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forge-foundation/forge/lib/action"
	"github.com/forge-foundation/forge/lib/clock"
	"github.com/forge-foundation/forge/lib/config"
	"github.com/forge-foundation/forge/lib/step"
	"github.com/forge-foundation/forge/lib/terminal"
	"github.com/forge-foundation/forge/lib/vfs"
	"github.com/forge-foundation/forge/runtime"
)

// Step ids for the build stages. Re-running a stage updates its step
// in place.
const (
	StepBoot    = "boot"
	StepMount   = "mount"
	StepInstall = "install"
	StepServer  = "dev-server"
)

// installMarkerInterval is how often a long install gets a progress
// note, up to installMarkerCount notes.
const (
	installMarkerInterval = 60 * time.Second
	installMarkerCount    = 3
)

// Options configures an Orchestrator. Runtime is required; everything
// else has a working default.
type Options struct {
	// Runtime boots the sandbox. Required.
	Runtime runtime.Runtime

	// Config supplies installer, dev-server, and stop settings.
	// Defaults to config.Default().
	Config *config.Config

	// Clock drives install progress markers and the stop bound.
	// Defaults to the real clock.
	Clock clock.Clock

	// Logger receives operational logging. Defaults to a discard
	// logger.
	Logger *slog.Logger

	// Tracker receives step updates. Defaults to a fresh tracker.
	Tracker *step.Tracker
}

// Orchestrator runs the build lifecycle against one sandbox.
type Orchestrator struct {
	runtime   runtime.Runtime
	cfg       *config.Config
	clk       clock.Clock
	logger    *slog.Logger
	tracker   *step.Tracker
	buffer    *terminal.Buffer
	ready     *terminal.ReadyDetector
	sessionID uuid.UUID

	// opMu serializes operation entry: one of Boot, Mount,
	// EnsureDependencies, StartDevServer, StopDevServer at a time.
	opMu sync.Mutex

	// mu guards the fields below, shared with background goroutines.
	mu         sync.Mutex
	phase      Phase
	handle     runtime.Handle
	bootDone   chan struct{}
	bootErr    error
	server     *serverState
	generation int
	previewURL string
	serverErr  error

	// mounted maps path to the content sum written by the last
	// successful mount, so re-mounts of a growing document skip
	// unchanged files.
	mounted map[string]string
}

// serverState is one dev-server run.
type serverState struct {
	process    runtime.Process
	generation int
	ready      bool

	// readyCh closes when readiness is detected for this run.
	readyCh chan struct{}

	// exited closes when the process exits, intentional or not.
	exited chan struct{}
}

// New returns an orchestrator for the given runtime.
func New(options Options) *Orchestrator {
	cfg := options.Config
	if cfg == nil {
		cfg = config.Default()
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracker := options.Tracker
	if tracker == nil {
		tracker = step.NewTracker(clk)
	}
	return &Orchestrator{
		runtime:   options.Runtime,
		cfg:       cfg,
		clk:       clk,
		logger:    logger,
		tracker:   tracker,
		buffer:    terminal.NewBuffer(terminal.DefaultBufferSize),
		ready:     terminal.NewReadyDetector(cfg.Dev.ReadyMarkers...),
		sessionID: uuid.New(),
		phase:     PhaseUninitialized,
		mounted:   make(map[string]string),
	}
}

// SessionID identifies this orchestrator's build session.
func (orch *Orchestrator) SessionID() uuid.UUID { return orch.sessionID }

// Tracker returns the step tracker, for subscription and snapshots.
func (orch *Orchestrator) Tracker() *step.Tracker { return orch.tracker }

// Terminal returns the shared terminal buffer.
func (orch *Orchestrator) Terminal() *terminal.Buffer { return orch.buffer }

// Phase returns the current lifecycle phase.
func (orch *Orchestrator) Phase() Phase {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.phase
}

// PreviewURL returns the dev server's served address, or "" before
// readiness.
func (orch *Orchestrator) PreviewURL() string {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.previewURL
}

// Boot acquires the sandbox. At most one sandbox is ever held: a
// second call while booted is a no-op, and a call racing an in-flight
// boot waits for that boot's outcome instead of booting twice. Boot
// failures are retryable.
func (orch *Orchestrator) Boot(ctx context.Context) error {
	orch.mu.Lock()
	if orch.handle != nil {
		orch.mu.Unlock()
		return nil
	}
	if orch.bootDone != nil {
		done := orch.bootDone
		orch.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		orch.mu.Lock()
		err := orch.bootErr
		orch.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	orch.bootDone = done
	orch.phase = transition(orch.phase, eventBootBegin)
	orch.mu.Unlock()

	orch.logger.Info("booting sandbox", "session", orch.sessionID)
	orch.tracker.Upsert(StepBoot, "Boot sandbox", step.Running, "")
	handle, err := orch.runtime.Boot(ctx)

	orch.mu.Lock()
	orch.bootDone = nil
	if err != nil {
		orch.bootErr = fmt.Errorf("orchestrator: booting sandbox: %w", err)
		orch.phase = transition(orch.phase, eventFail)
		orch.mu.Unlock()
		close(done)

		orch.tracker.Upsert(StepBoot, "Boot sandbox", step.Error, err.Error())
		orch.buffer.WriteString("sandbox boot failed: " + err.Error() + "\n")
		countOperation("boot", err)
		return orch.bootErr
	}
	orch.handle = handle
	orch.bootErr = nil
	orch.phase = transition(orch.phase, eventBootOK)
	orch.mu.Unlock()
	close(done)

	go orch.watchServerReady(handle)

	orch.tracker.Upsert(StepBoot, "Boot sandbox", step.Success, "")
	countOperation("boot", nil)
	return nil
}

// watchServerReady forwards the runtime's own readiness notifications
// into the current server run. The loop ends when the handle closes
// its channel.
func (orch *Orchestrator) watchServerReady(handle runtime.Handle) {
	for event := range handle.ServerReady() {
		orch.mu.Lock()
		state := orch.server
		orch.mu.Unlock()
		if state != nil {
			orch.markReady(state.generation, event.URL)
		}
	}
}

// Mount writes the artifact's files into the sandbox. When the
// artifact never wrote a package manifest, a default one is
// synthesized so the install step always has something to act on.
// Files unchanged since the previous mount are skipped; a failed mount
// leaves previously mounted files in place.
func (orch *Orchestrator) Mount(ctx context.Context, artifact action.Artifact) error {
	orch.opMu.Lock()
	defer orch.opMu.Unlock()

	if err := orch.Boot(ctx); err != nil {
		return err
	}

	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventMountBegin)
	handle := orch.handle
	orch.mu.Unlock()

	orch.tracker.Upsert(StepMount, "Mount project files", step.Running, "")

	actions := artifact.Actions
	if !vfs.HasManifest(actions) {
		// The artifact id is already slug-shaped; the title is free-form
		// prose and makes a poor npm package name.
		actions = append(append([]action.Action(nil), actions...), vfs.SynthesizeManifest(artifact.ID))
	}
	tree, err := vfs.BuildTree(actions)
	if err != nil {
		return orch.failMount(err)
	}

	delta, sums, err := orch.mountDelta(tree)
	if err != nil {
		return orch.failMount(err)
	}
	if len(sums) > 0 {
		if err := handle.Mount(ctx, delta); err != nil {
			return orch.failMount(err)
		}
	}

	orch.mu.Lock()
	for path, sum := range sums {
		orch.mounted[path] = sum
	}
	fileCount := len(sums)
	orch.phase = transition(orch.phase, eventMountOK)
	orch.mu.Unlock()

	orch.logger.Info("mounted project files", "changed", fileCount)
	orch.tracker.Upsert(StepMount, "Mount project files", step.Success,
		fmt.Sprintf("%d file(s) written", fileCount))
	countOperation("mount", nil)
	return nil
}

// mountDelta builds the subtree of files whose content sum differs
// from the last successful mount, plus the path→sum map to commit on
// success.
func (orch *Orchestrator) mountDelta(tree *vfs.Directory) (*vfs.Directory, map[string]string, error) {
	orch.mu.Lock()
	previous := make(map[string]string, len(orch.mounted))
	for path, sum := range orch.mounted {
		previous[path] = sum
	}
	orch.mu.Unlock()

	delta := vfs.NewDirectory()
	sums := make(map[string]string)
	err := tree.Walk(func(path string, file vfs.File) error {
		sum := file.Sum()
		if previous[path] == sum {
			return nil
		}
		sums[path] = sum
		return delta.WriteFile(path, file.Contents)
	})
	if err != nil {
		return nil, nil, err
	}
	return delta, sums, nil
}

func (orch *Orchestrator) failMount(err error) error {
	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventFail)
	orch.mu.Unlock()

	mountErr := &MountError{Err: err}
	orch.tracker.Upsert(StepMount, "Mount project files", step.Error, err.Error())
	orch.buffer.WriteString("mount failed: " + err.Error() + "\n")
	countOperation("mount", err)
	return mountErr
}

// EnsureDependencies installs the project's dependencies. When a
// populated node_modules directory already exists the install is
// skipped. The installer's normalized output streams into the install
// step and the terminal buffer, with progress notes when it runs long.
func (orch *Orchestrator) EnsureDependencies(ctx context.Context) error {
	orch.opMu.Lock()
	defer orch.opMu.Unlock()
	return orch.ensureDependencies(ctx)
}

// ensureDependencies is the guts of EnsureDependencies; the caller
// holds opMu.
func (orch *Orchestrator) ensureDependencies(ctx context.Context) error {
	if err := orch.Boot(ctx); err != nil {
		return err
	}

	orch.mu.Lock()
	handle := orch.handle
	orch.mu.Unlock()

	if _, err := handle.ReadFile(ctx, vfs.ManifestPath); err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			orch.tracker.Upsert(StepInstall, "Install dependencies", step.Error, ErrManifestMissing.Error())
			return ErrManifestMissing
		}
		return orch.failInstall(-1, fmt.Errorf("reading manifest: %w", err))
	}

	if entries, err := handle.ReadDir(ctx, "node_modules"); err == nil && len(entries) > 0 {
		orch.tracker.Upsert(StepInstall, "Install dependencies", step.Success, "dependencies already installed")
		countOperation("install", nil)
		return nil
	}

	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventInstallBegin)
	orch.mu.Unlock()

	tool, args := orch.cfg.Installer.CommandLine()
	orch.logger.Info("installing dependencies", "tool", tool)
	orch.tracker.Upsert(StepInstall, "Install dependencies", step.Running, "")

	process, err := handle.Spawn(ctx, tool, args)
	if err != nil {
		return orch.failInstall(-1, fmt.Errorf("spawning installer: %w", err))
	}

	finished := make(chan struct{})
	defer close(finished)
	go orch.installMarkers(finished)

	var pumped sync.WaitGroup
	pumped.Add(1)
	go func() {
		defer pumped.Done()
		for chunk := range process.Output() {
			text := terminal.Normalize(string(chunk))
			orch.buffer.WriteString(text)
			_ = orch.tracker.AppendOutput(StepInstall, text)
		}
	}()

	code, err := process.Wait(ctx)
	if err != nil {
		process.Kill()
		return orch.failInstall(-1, err)
	}
	pumped.Wait()
	if code != 0 {
		return orch.failInstall(code, nil)
	}

	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventInstallOK)
	orch.mu.Unlock()

	orch.tracker.Update(StepInstall, step.Patch{Status: statusPtr(step.Success)})
	countOperation("install", nil)
	return nil
}

// installMarkers writes a progress note each minute for the first few
// minutes of a long install, so a silent installer does not look hung.
func (orch *Orchestrator) installMarkers(finished <-chan struct{}) {
	for i := 1; i <= installMarkerCount; i++ {
		select {
		case <-orch.clk.After(installMarkerInterval):
			note := fmt.Sprintf("install still running after %s\n", time.Duration(i)*installMarkerInterval)
			orch.buffer.WriteString(note)
			_ = orch.tracker.AppendOutput(StepInstall, note)
		case <-finished:
			return
		}
	}
}

func (orch *Orchestrator) failInstall(code int, err error) error {
	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventFail)
	orch.mu.Unlock()

	installErr := &InstallError{ExitCode: code, Err: err}
	if updateErr := orch.tracker.Update(StepInstall, step.Patch{Status: statusPtr(step.Error)}); errors.Is(updateErr, step.ErrUnknownStep) {
		orch.tracker.Upsert(StepInstall, "Install dependencies", step.Error, "")
	}
	_ = orch.tracker.AppendOutput(StepInstall, installErr.Error()+"\n")
	orch.buffer.WriteString(installErr.Error() + "\n")
	countOperation("install", installErr)
	return installErr
}

// StartDevServer ensures dependencies are installed and spawns the dev
// server. A server already running makes this a no-op; a dead previous
// server is killed and replaced. StartDevServer returns once the
// process is spawned; readiness arrives asynchronously, observable
// via WaitReady or the dev-server step.
func (orch *Orchestrator) StartDevServer(ctx context.Context) error {
	orch.opMu.Lock()
	defer orch.opMu.Unlock()

	orch.mu.Lock()
	if current := orch.server; current != nil {
		select {
		case <-current.exited:
			// Dead run; replace it below.
		default:
			orch.mu.Unlock()
			return nil
		}
	}
	orch.mu.Unlock()

	if err := orch.ensureDependencies(ctx); err != nil {
		return err
	}

	orch.mu.Lock()
	handle := orch.handle
	if orch.server != nil {
		orch.server.process.Kill()
		orch.server = nil
	}
	orch.previewURL = ""
	orch.serverErr = nil
	orch.mu.Unlock()
	orch.ready.Reset()

	orch.logger.Info("starting dev server", "command", orch.cfg.Dev.Command)
	orch.tracker.Upsert(StepServer, "Dev server", step.Running, "")

	process, err := handle.Spawn(ctx, orch.cfg.Dev.Command, orch.cfg.Dev.Args)
	if err != nil {
		orch.mu.Lock()
		orch.phase = transition(orch.phase, eventFail)
		orch.mu.Unlock()
		serverErr := &ServerError{ExitCode: -1, Err: err}
		orch.tracker.Upsert(StepServer, "Dev server", step.Error, err.Error())
		orch.buffer.WriteString("dev server failed to start: " + err.Error() + "\n")
		countOperation("server_start", serverErr)
		return serverErr
	}

	orch.mu.Lock()
	orch.generation++
	state := &serverState{
		process:    process,
		generation: orch.generation,
		readyCh:    make(chan struct{}),
		exited:     make(chan struct{}),
	}
	orch.server = state
	orch.phase = transition(orch.phase, eventStartBegin)
	orch.mu.Unlock()

	go orch.pumpServerOutput(state)
	go orch.monitorServerExit(state)
	countOperation("server_start", nil)
	return nil
}

// pumpServerOutput streams normalized server output into the terminal
// buffer and the dev-server step, watching for a textual readiness
// signal.
func (orch *Orchestrator) pumpServerOutput(state *serverState) {
	for chunk := range state.process.Output() {
		text := terminal.Normalize(string(chunk))
		orch.buffer.WriteString(text)
		_ = orch.tracker.AppendOutput(StepServer, text)
		if orch.ready.Detect(text) {
			orch.markReady(state.generation, terminal.ExtractURL(text))
		}
	}
}

// markReady records the ready transition for the given server run.
// Stale generations and repeat signals are ignored: the transition
// happens exactly once per run.
func (orch *Orchestrator) markReady(generation int, url string) {
	orch.mu.Lock()
	state := orch.server
	if state == nil || state.generation != generation || state.ready {
		orch.mu.Unlock()
		return
	}
	state.ready = true
	if url != "" {
		orch.previewURL = url
	}
	orch.phase = transition(orch.phase, eventServerReady)
	orch.mu.Unlock()

	orch.logger.Info("dev server ready", "url", url)
	orch.tracker.Update(StepServer, step.Patch{Status: statusPtr(step.Success)})
	close(state.readyCh)
}

// monitorServerExit waits for the process to die. An exit observed
// while this run is still the current server means the server crashed;
// an exit after StopDevServer replaced or cleared the run is the stop
// itself and carries no error.
func (orch *Orchestrator) monitorServerExit(state *serverState) {
	code, _ := state.process.Wait(context.Background())

	orch.mu.Lock()
	current := orch.server == state
	var serverErr *ServerError
	if current {
		serverErr = &ServerError{ExitCode: code}
		orch.serverErr = serverErr
		orch.previewURL = ""
		orch.phase = transition(orch.phase, eventFail)
	}
	orch.mu.Unlock()
	close(state.exited)
	if !current {
		return
	}

	orch.logger.Warn("dev server exited", "code", code)
	orch.tracker.Upsert(StepServer, "Dev server", step.Error, serverErr.Error())
	orch.buffer.WriteString(serverErr.Error() + "\n")
}

// WaitReady blocks until the current dev server run signals readiness
// and returns the preview URL. Returns the run's ServerError if the
// server dies first.
func (orch *Orchestrator) WaitReady(ctx context.Context) (string, error) {
	orch.mu.Lock()
	state := orch.server
	orch.mu.Unlock()
	if state == nil {
		return "", errors.New("orchestrator: no dev server started")
	}

	select {
	case <-state.readyCh:
	default:
		select {
		case <-state.readyCh:
		case <-state.exited:
			orch.mu.Lock()
			err := orch.serverErr
			orch.mu.Unlock()
			if err == nil {
				err = &ServerError{ExitCode: -1}
			}
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.previewURL, nil
}

// StopDevServer stops the dev server using the configured timeout.
// Stopping with nothing running is not an error.
func (orch *Orchestrator) StopDevServer(ctx context.Context) error {
	return orch.StopWithTimeout(ctx, orch.cfg.StopTimeout())
}

// StopWithTimeout stops the dev server, waiting at most timeout for
// the process to die before resetting state anyway. The kill is
// best-effort: a timeout is noted in the terminal buffer, never
// returned as an error. A sweep for stray interpreter and installer
// processes runs either way and may find nothing.
func (orch *Orchestrator) StopWithTimeout(ctx context.Context, timeout time.Duration) error {
	orch.opMu.Lock()
	defer orch.opMu.Unlock()

	orch.mu.Lock()
	state := orch.server
	orch.server = nil
	orch.previewURL = ""
	orch.serverErr = nil
	handle := orch.handle
	orch.phase = transition(orch.phase, eventStopBegin)
	orch.mu.Unlock()

	if state != nil {
		orch.logger.Info("stopping dev server")
		state.process.Kill()
		select {
		case <-state.exited:
		case <-orch.clk.After(timeout):
			orch.buffer.WriteString(fmt.Sprintf("dev server did not exit within %s; state reset\n", timeout))
		}
		orch.tracker.Upsert(StepServer, "Dev server", step.Idle, "stopped")
	}

	if handle != nil {
		if err := handle.KillStrayProcesses(ctx, orch.strayNames()...); err != nil {
			orch.buffer.WriteString("stray process sweep failed: " + err.Error() + "\n")
		}
	}

	orch.ready.Reset()
	orch.mu.Lock()
	orch.phase = transition(orch.phase, eventStopDone)
	orch.mu.Unlock()
	countOperation("stop", nil)
	return nil
}

// strayNames is the process-name sweep list: the interpreters and
// package managers a dev server leaves behind.
func (orch *Orchestrator) strayNames() []string {
	names := []string{"node", "npm", "pnpm"}
	seen := map[string]bool{"node": true, "npm": true, "pnpm": true}
	for _, extra := range []string{orch.cfg.Dev.Command, orch.cfg.Installer.Tool} {
		if extra != "" && !seen[extra] {
			names = append(names, extra)
			seen[extra] = true
		}
	}
	return names
}

// Close stops the dev server and releases the sandbox.
func (orch *Orchestrator) Close() error {
	_ = orch.StopDevServer(context.Background())

	orch.opMu.Lock()
	defer orch.opMu.Unlock()
	orch.mu.Lock()
	handle := orch.handle
	orch.handle = nil
	orch.phase = PhaseUninitialized
	orch.mounted = make(map[string]string)
	orch.mu.Unlock()

	if handle != nil {
		return handle.Close()
	}
	return nil
}

func statusPtr(status step.Status) *step.Status { return &status }
