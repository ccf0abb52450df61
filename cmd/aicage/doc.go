// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the aicage CLI commands.
//
// The command tree is built by NewRootCommand around an App, the composition
// root that turns the loaded configuration into the provisioning services.
// Handlers never print domain errors themselves: they return them, and the
// error handler installed on fang renders them as actionable errors.
package cmd
