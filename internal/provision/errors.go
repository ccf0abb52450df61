// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"

	"aicage-cli/internal/container"
)

type (
	// BuildFailedError is returned when a local image build exits non-zero. The
	// build output is in the log file, never in the message.
	BuildFailedError struct {
		ImageRef container.ImageRef
		LogPath  string
		Err      error
	}

	// PullFailedError is returned when an image could not be pulled and no local
	// copy exists to fall back to.
	PullFailedError struct {
		ImageRef container.ImageRef
		// Detail is the most specific output the pull produced.
		Detail string
		Err    error
	}
)

// Error implements the error interface.
func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("Local image build failed for %s. See log at %s.", e.ImageRef, e.LogPath)
}

// Unwrap returns the underlying engine error.
func (e *BuildFailedError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *PullFailedError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("docker pull failed for %s", e.ImageRef)
}

// Unwrap returns the underlying engine error.
func (e *PullFailedError) Unwrap() error { return e.Err }
