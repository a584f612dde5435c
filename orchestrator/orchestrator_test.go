// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/forge-foundation/forge/lib/action"
	"github.com/forge-foundation/forge/lib/clock"
	"github.com/forge-foundation/forge/lib/step"
	"github.com/forge-foundation/forge/lib/testutil"
	"github.com/forge-foundation/forge/runtime"
)

const installCommandLine = "npm install --no-package-lock --no-audit --no-fund --fetch-retries 2"

const sampleDoc = `Setting up a small project.
<forgeArtifact id="demo-app" title="Demo App">
<forgeAction type="file" filePath="/index.html">
<h1>hello</h1>
</forgeAction>
<forgeAction type="file" filePath="src/main.js">
console.log("hello")
</forgeAction>
</forgeArtifact>
All set.`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *runtime.Fake, *clock.FakeClock) {
	t.Helper()
	fake := runtime.NewFake()
	clk := clock.Fake(time.Unix(1700000000, 0))
	orch := New(Options{Runtime: fake, Clock: clk})
	t.Cleanup(func() { orch.Close() })
	return orch, fake, clk
}

func parseSample(t *testing.T) action.Artifact {
	t.Helper()
	artifact, warnings := action.Parse(sampleDoc)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return artifact
}

func stepByID(t *testing.T, steps []step.Step, id string) step.Step {
	t.Helper()
	for _, entry := range steps {
		if entry.ID == id {
			return entry
		}
	}
	t.Fatalf("step %q not found in %v", id, steps)
	return step.Step{}
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.ScriptCommand(installCommandLine, runtime.Script{
		Output:       []string{"added 42 packages\n"},
		CreatesFiles: map[string]string{"node_modules/vite/package.json": "{}"},
	})
	handle.ScriptCommand("npm run dev", runtime.Script{
		Output: []string{"  VITE ready in 300 ms\n\n  Local:   http://localhost:5173/\n"},
		Block:  true,
	})

	ctx := context.Background()
	if err := orch.Mount(ctx, parseSample(t)); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	manifest, err := handle.ReadFile(ctx, "package.json")
	if err != nil {
		t.Fatalf("synthesized manifest missing: %v", err)
	}
	if !strings.Contains(manifest, "vite") {
		t.Errorf("synthesized manifest lacks dev toolchain: %q", manifest)
	}

	if err := orch.StartDevServer(ctx); err != nil {
		t.Fatalf("StartDevServer: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	url, err := orch.WaitReady(waitCtx)
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if url != "http://localhost:5173/" {
		t.Errorf("preview URL = %q", url)
	}
	if orch.Phase() != PhaseRunning {
		t.Errorf("phase = %v, want running", orch.Phase())
	}

	steps := orch.Tracker().Snapshot()
	for _, id := range []string{StepBoot, StepMount, StepInstall, StepServer} {
		if got := stepByID(t, steps, id).Status; got != step.Success {
			t.Errorf("step %s status = %v, want success", id, got)
		}
	}
	if !strings.Contains(orch.Terminal().String(), "added 42 packages") {
		t.Errorf("terminal buffer missing install output: %q", orch.Terminal().String())
	}

	if err := orch.StopDevServer(ctx); err != nil {
		t.Fatalf("StopDevServer: %v", err)
	}
	if orch.Phase() != PhaseReady {
		t.Errorf("phase after stop = %v, want ready", orch.Phase())
	}
	if orch.PreviewURL() != "" {
		t.Errorf("preview URL survived stop: %q", orch.PreviewURL())
	}
	if got := stepByID(t, orch.Tracker().Snapshot(), StepServer).Status; got != step.Idle {
		t.Errorf("dev-server step after stop = %v, want idle", got)
	}
	if sweeps := handle.Sweeps(); len(sweeps) == 0 {
		t.Error("stop did not sweep stray processes")
	}
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.PutFile("node_modules/.bin/vite", "")
	handle.ScriptCommand("npm run dev", runtime.Script{
		Output: []string{"server ready\n"},
		Block:  true,
	})

	ctx := context.Background()
	if err := orch.StartDevServer(ctx); err != nil {
		t.Fatalf("StartDevServer: %v", err)
	}
	if err := orch.StartDevServer(ctx); err != nil {
		t.Fatalf("second StartDevServer: %v", err)
	}

	started := 0
	for _, line := range handle.Spawned() {
		if line == "npm run dev" {
			started++
		}
	}
	if started != 1 {
		t.Errorf("dev server spawned %d times, want 1", started)
	}
}

func TestReadinessViaRuntimeEvent(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.PutFile("node_modules/.bin/vite", "")
	handle.ScriptCommand("npm run dev", runtime.Script{
		Output: []string{"compiling client bundle\n"},
		Block:  true,
	})

	ctx := context.Background()
	if err := orch.StartDevServer(ctx); err != nil {
		t.Fatalf("StartDevServer: %v", err)
	}
	handle.EmitServerReady(3000, "http://127.0.0.1:3000")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	url, err := orch.WaitReady(waitCtx)
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if url != "http://127.0.0.1:3000" {
		t.Errorf("preview URL = %q", url)
	}
}

func TestInstallProgressMarkers(t *testing.T) {
	t.Parallel()

	orch, fake, clk := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.ScriptCommand(installCommandLine, runtime.Script{Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- orch.EnsureDependencies(ctx) }()

	for _, want := range []string{"after 1m0s", "after 2m0s", "after 3m0s"} {
		clk.WaitForTimers(1)
		clk.Advance(installMarkerInterval)
		testutil.Eventually(t, 5*time.Second, func() bool {
			return strings.Contains(orch.Terminal().String(), want)
		}, "progress marker %q", want)
	}

	cancel()
	err := testutil.RequireReceive(t, result, 5*time.Second, "install result")
	var installErr *InstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("EnsureDependencies = %v, want InstallError", err)
	}
	if orch.Phase() != PhaseError {
		t.Errorf("phase = %v, want error", orch.Phase())
	}
}

func TestInstallFailureExitCode(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.ScriptCommand(installCommandLine, runtime.Script{
		Output:   []string{"npm ERR! registry unreachable\n"},
		ExitCode: 1,
	})

	err := orch.EnsureDependencies(context.Background())
	var installErr *InstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("EnsureDependencies = %v, want InstallError", err)
	}
	if installErr.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", installErr.ExitCode)
	}
	entry := stepByID(t, orch.Tracker().Snapshot(), StepInstall)
	if entry.Status != step.Error {
		t.Errorf("install step status = %v, want error", entry.Status)
	}
	if !strings.Contains(entry.Output, "registry unreachable") {
		t.Errorf("install step output missing diagnostic: %q", entry.Output)
	}
}

func TestManifestMissing(t *testing.T) {
	t.Parallel()

	orch, _, _ := newTestOrchestrator(t)
	err := orch.EnsureDependencies(context.Background())
	if !errors.Is(err, ErrManifestMissing) {
		t.Fatalf("EnsureDependencies = %v, want ErrManifestMissing", err)
	}
	if got := stepByID(t, orch.Tracker().Snapshot(), StepInstall).Status; got != step.Error {
		t.Errorf("install step status = %v, want error", got)
	}
}

func TestNodeModulesFastPath(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.PutFile("node_modules/.bin/vite", "")

	if err := orch.EnsureDependencies(context.Background()); err != nil {
		t.Fatalf("EnsureDependencies: %v", err)
	}
	if spawned := handle.Spawned(); len(spawned) != 0 {
		t.Errorf("fast path spawned %v", spawned)
	}
	if got := stepByID(t, orch.Tracker().Snapshot(), StepInstall).Status; got != step.Success {
		t.Errorf("install step status = %v, want success", got)
	}
}

func TestMountDeltaSkipsUnchangedFiles(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	ctx := context.Background()

	if err := orch.Mount(ctx, parseSample(t)); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if handle.MountCount() != 1 {
		t.Fatalf("MountCount = %d, want 1", handle.MountCount())
	}

	// Same document again: nothing changed, nothing written.
	if err := orch.Mount(ctx, parseSample(t)); err != nil {
		t.Fatalf("re-Mount: %v", err)
	}
	if handle.MountCount() != 1 {
		t.Errorf("MountCount after unchanged re-mount = %d, want 1", handle.MountCount())
	}

	grown, _ := action.Parse(sampleDoc + `
<forgeArtifact id="demo-app" title="Demo App">
<forgeAction type="file" filePath="src/extra.js">
export {}
</forgeAction>
</forgeArtifact>`)
	if err := orch.Mount(ctx, grown); err != nil {
		t.Fatalf("Mount grown: %v", err)
	}
	if handle.MountCount() != 2 {
		t.Errorf("MountCount after new file = %d, want 2", handle.MountCount())
	}
	if _, err := handle.ReadFile(ctx, "src/extra.js"); err != nil {
		t.Errorf("new file not mounted: %v", err)
	}
}

func TestMountFailureKeepsPriorFiles(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	ctx := context.Background()

	if err := orch.Mount(ctx, parseSample(t)); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	handle.FailMount(errors.New("sandbox filesystem full"))
	grown, _ := action.Parse(sampleDoc + `
<forgeArtifact id="demo-app" title="Demo App">
<forgeAction type="file" filePath="src/extra.js">
export {}
</forgeAction>
</forgeArtifact>`)
	err := orch.Mount(ctx, grown)
	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("Mount = %v, want MountError", err)
	}
	if orch.Phase() != PhaseError {
		t.Errorf("phase = %v, want error", orch.Phase())
	}
	if _, err := handle.ReadFile(ctx, "index.html"); err != nil {
		t.Errorf("previously mounted file lost: %v", err)
	}
}

func TestBootRetryAfterFailure(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	fake.FailBoot(errors.New("no sandbox capacity"))

	ctx := context.Background()
	if err := orch.Boot(ctx); err == nil {
		t.Fatal("Boot succeeded against failing runtime")
	}
	if orch.Phase() != PhaseError {
		t.Errorf("phase = %v, want error", orch.Phase())
	}
	entry := stepByID(t, orch.Tracker().Snapshot(), StepBoot)
	if entry.Status != step.Error || !strings.Contains(entry.Output, "capacity") {
		t.Errorf("boot step = %+v, want error with diagnostic", entry)
	}

	fake.FailBoot(nil)
	if err := orch.Boot(ctx); err != nil {
		t.Fatalf("Boot retry: %v", err)
	}
	if orch.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", orch.Phase())
	}
	if fake.BootCount() != 1 {
		t.Errorf("BootCount = %d, want 1", fake.BootCount())
	}

	// A booted orchestrator never boots twice.
	if err := orch.Boot(ctx); err != nil {
		t.Fatalf("Boot on booted orchestrator: %v", err)
	}
	if fake.BootCount() != 1 {
		t.Errorf("BootCount after re-boot = %d, want 1", fake.BootCount())
	}
}

func TestStopWithNothingRunning(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	ctx := context.Background()
	if err := orch.Boot(ctx); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := orch.StopDevServer(ctx); err != nil {
		t.Fatalf("StopDevServer: %v", err)
	}
	if orch.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", orch.Phase())
	}

	sweeps := fake.Handle().Sweeps()
	if len(sweeps) != 1 {
		t.Fatalf("sweeps = %v, want one", sweeps)
	}
	found := false
	for _, name := range sweeps[0] {
		if name == "node" {
			found = true
		}
	}
	if !found {
		t.Errorf("sweep %v missing node", sweeps[0])
	}
}

func TestServerCrashSetsServerError(t *testing.T) {
	t.Parallel()

	orch, fake, _ := newTestOrchestrator(t)
	handle := fake.Handle()
	handle.PutFile("package.json", "{}")
	handle.PutFile("node_modules/.bin/vite", "")
	handle.ScriptCommand("npm run dev", runtime.Script{
		Output:   []string{"error: EADDRINUSE\n"},
		ExitCode: 1,
	})

	ctx := context.Background()
	if err := orch.StartDevServer(ctx); err != nil {
		t.Fatalf("StartDevServer: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := orch.WaitReady(waitCtx)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("WaitReady = %v, want ServerError", err)
	}
	if serverErr.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", serverErr.ExitCode)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return orch.Phase() == PhaseError
	}, "phase error after crash")
	if orch.PreviewURL() != "" {
		t.Errorf("preview URL set after crash: %q", orch.PreviewURL())
	}
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current Phase
		input   event
		want    Phase
	}{
		{PhaseUninitialized, eventBootBegin, PhaseBooting},
		{PhaseBooting, eventBootOK, PhaseReady},
		{PhaseReady, eventMountBegin, PhaseMounting},
		{PhaseMounting, eventMountOK, PhaseReady},
		{PhaseRunning, eventMountBegin, PhaseRunning},
		{PhaseRunning, eventMountOK, PhaseRunning},
		{PhaseReady, eventInstallBegin, PhaseInstalling},
		{PhaseInstalling, eventInstallOK, PhaseReady},
		{PhaseReady, eventStartBegin, PhaseStarting},
		{PhaseStarting, eventServerReady, PhaseRunning},
		{PhaseRunning, eventStopBegin, PhaseStopping},
		{PhaseStopping, eventStopDone, PhaseReady},
		{PhaseInstalling, eventFail, PhaseError},
		{PhaseError, eventBootBegin, PhaseBooting},
		{PhaseError, eventMountBegin, PhaseMounting},
	}
	for _, tc := range cases {
		if got := transition(tc.current, tc.input); got != tc.want {
			t.Errorf("transition(%v, %d) = %v, want %v", tc.current, tc.input, got, tc.want)
		}
	}
}
