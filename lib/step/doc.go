// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package step is the single source of truth for build-stage progress.
// Every status transition in the system flows through Tracker.Upsert
// or Tracker.Update; no other component mutates step state. Consumers
// read ordered snapshots or subscribe for change notification.
package step
