// SPDX-License-Identifier: MPL-2.0

// Package config handles aicage configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/aicage/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/aicage/config.cue on macOS, %APPDATA%\aicage\config.cue
// on Windows). A missing file means defaults. The file is validated against the embedded
// CUE schema (config_schema.cue) before it is merged over the defaults, and the result
// is checked once more for constraints the schema cannot express.
//
// Every directory and repository the engine touches comes from here; components receive
// them explicitly instead of reading package-level paths.
package config
