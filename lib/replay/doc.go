// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay records a build session as an append-only sequence of
// CBOR records: a session header, then one record per build action and
// per step transition, in the order they happened. Because the codec
// encodes deterministically, replaying the same document through the
// same pipeline produces a byte-identical action log, which is how the
// system's "no hidden state" guarantee gets checked.
package replay
