// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and drive it with Advance, which
// makes timeout races and periodic progress markers deterministic
// instead of sleep-and-hope.
package clock
