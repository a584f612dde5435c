// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package action turns scanned markup tags into the typed build-action
// model: an Artifact holding an ordered sequence of file writes and
// shell commands. Malformed input degrades to recorded warnings, never
// to a failed parse, because the upstream model's output is best-effort and
// one bad action must not hide the rest of the document.
package action
