// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal handles raw process output on its way to a display
// surface: escape-sequence normalization, dev-server readiness
// detection, and a bounded live output buffer with monotonic offsets
// for reconnecting readers.
package terminal
