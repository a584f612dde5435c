// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package vfs models the project filesystem handed to the sandbox
// runtime as a tagged recursive tree: a Directory exclusively owns its
// children, and a leaf is always a File. Every intermediate path
// segment becomes a Directory node whether or not the source ever
// named it explicitly.
package vfs
