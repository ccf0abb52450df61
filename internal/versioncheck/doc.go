// SPDX-License-Identifier: MPL-2.0

// Package versioncheck determines an agent's current upstream version by
// running the agent's version.sh script, first in one environment and then in
// the other (host shell or builder container, in configured order). The first
// successful answer is cached under the state directory.
package versioncheck
