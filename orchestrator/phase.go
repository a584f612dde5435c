// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

// Phase is the orchestrator's lifecycle position. Phases move through
// the build stages in order; Error is reachable from any of them and
// every operation that starts from Error re-attempts cleanly.
type Phase string

const (
	// PhaseUninitialized means no sandbox has been booted.
	PhaseUninitialized Phase = "uninitialized"
	// PhaseBooting means sandbox acquisition is in flight.
	PhaseBooting Phase = "booting"
	// PhaseReady means the sandbox is booted and idle.
	PhaseReady Phase = "ready"
	// PhaseMounting means project files are being written.
	PhaseMounting Phase = "mounting"
	// PhaseInstalling means the dependency installer is running.
	PhaseInstalling Phase = "installing"
	// PhaseStarting means the dev server was spawned but has not
	// signalled readiness.
	PhaseStarting Phase = "starting"
	// PhaseRunning means the dev server is serving.
	PhaseRunning Phase = "running"
	// PhaseStopping means a stop is in flight.
	PhaseStopping Phase = "stopping"
	// PhaseError means the last operation failed. Retryable.
	PhaseError Phase = "error"
)

// event is a lifecycle input to the transition reducer.
type event int

const (
	eventBootBegin event = iota
	eventBootOK
	eventMountBegin
	eventMountOK
	eventInstallBegin
	eventInstallOK
	eventStartBegin
	eventServerReady
	eventStopBegin
	eventStopDone
	eventFail
)

// transition is the single place phase changes are decided. Mounting
// into a running server (a live file update) keeps the Running phase
// rather than bouncing through Mounting.
func transition(current Phase, input event) Phase {
	switch input {
	case eventBootBegin:
		return PhaseBooting
	case eventBootOK:
		return PhaseReady
	case eventMountBegin:
		if current == PhaseRunning {
			return PhaseRunning
		}
		return PhaseMounting
	case eventMountOK:
		if current == PhaseRunning {
			return PhaseRunning
		}
		return PhaseReady
	case eventInstallBegin:
		return PhaseInstalling
	case eventInstallOK:
		return PhaseReady
	case eventStartBegin:
		return PhaseStarting
	case eventServerReady:
		return PhaseRunning
	case eventStopBegin:
		return PhaseStopping
	case eventStopDone:
		return PhaseReady
	case eventFail:
		return PhaseError
	}
	return current
}
