// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives a build session against a sandbox
// runtime: boot the sandbox, mount the parsed project files, install
// dependencies, run the dev server, and stop it again. Each stage is
// surfaced as a step in a step.Tracker and its normalized output flows
// into a shared terminal buffer.
//
// The orchestrator serializes operations: callers may invoke Boot,
// Mount, EnsureDependencies, StartDevServer, and StopDevServer from
// any goroutine, but only one operation runs at a time. Process output
// pumping and exit monitoring run on background goroutines that funnel
// back into the guarded state.
package orchestrator
