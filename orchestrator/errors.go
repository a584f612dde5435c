// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"errors"
	"fmt"
)

// ErrManifestMissing reports an install attempt against a sandbox with
// no package manifest. Mount synthesizes a manifest when the parsed
// actions lack one, so hitting this means mount never ran.
var ErrManifestMissing = errors.New("orchestrator: project manifest missing")

// MountError reports a failed project mount. Files written by earlier
// successful mounts are untouched.
type MountError struct {
	Err error
}

func (mountError *MountError) Error() string {
	return fmt.Sprintf("orchestrator: mounting project: %v", mountError.Err)
}

func (mountError *MountError) Unwrap() error { return mountError.Err }

// InstallError reports a failed dependency install. ExitCode is the
// installer's exit code, or -1 when the process could not be observed
// to completion.
type InstallError struct {
	ExitCode int
	Err      error
}

func (installError *InstallError) Error() string {
	if installError.Err != nil {
		return fmt.Sprintf("orchestrator: installing dependencies: %v", installError.Err)
	}
	return fmt.Sprintf("orchestrator: installer exited with code %d", installError.ExitCode)
}

func (installError *InstallError) Unwrap() error { return installError.Err }

// ServerError reports a dev server that exited while it was supposed
// to be running. A server killed by StopDevServer does not produce
// one.
type ServerError struct {
	ExitCode int
	Err      error
}

func (serverError *ServerError) Error() string {
	if serverError.Err != nil {
		return fmt.Sprintf("orchestrator: dev server: %v", serverError.Err)
	}
	return fmt.Sprintf("orchestrator: dev server exited with code %d", serverError.ExitCode)
}

func (serverError *ServerError) Unwrap() error { return serverError.Err }
