// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by tests across the
// repository: channel operations with timeout safety valves so a
// broken test hangs for seconds, not forever.
package testutil
