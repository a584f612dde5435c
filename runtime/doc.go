// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime defines the capability interface through which the
// orchestrator consumes a sandbox: boot, mount, file reads, process
// spawning, and server-ready notification. The runtime's internals
// are deliberately opaque; anything satisfying Handle can host a
// build. Fake (in this package) is the scripted test implementation,
// and runtime/local runs against the host for development use.
package runtime
