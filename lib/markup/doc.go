// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package markup lexes the forgeArtifact/forgeAction markup vocabulary
// out of streamed model output.
//
// The scanner is re-entrant over a growing buffer: callers pass the full
// text seen so far on every call, and only fully closed tag occurrences
// are reported. A tag whose closing marker has not yet arrived is
// invisible: it is neither emitted with truncated content nor treated
// as narration. Re-scanning from the start on each chunk trades some
// redundant work for robustness to tags split across arbitrary chunk
// boundaries.
package markup
