// SPDX-License-Identifier: MPL-2.0

// Package container wraps the docker engine operations the image freshness
// engine needs: local inspection, pulls, builds, remote manifest inspection and
// one-off runs.
//
// DockerEngine shells out to the docker CLI through BaseCLIEngine, whose
// ExecCommandFunc is injectable for tests. APIInspector answers the read-only
// Inspector subset over the daemon socket and can be layered onto any Engine
// with WithInspector.
package container
