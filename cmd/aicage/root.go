// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	verbose    bool
	configPath string
}

// NewRootCommand builds the aicage command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "aicage",
		Short: "Keep per-agent container images fresh",
		Long: TitleStyle.Render("aicage") + SubtitleStyle.Render(" - keep per-agent container images fresh") + `

aicage decides whether the container image for an (agent, base) pair is
current, rebuilds it locally when the agent version or the base image moved,
and pulls registry images only when their digest changed.

` + SubtitleStyle.Render("Examples:") + `
  aicage image ensure claude ubuntu   Build or reuse aicage:claude-ubuntu
  aicage image pull ghcr.io/aicage/aicage:claude-ubuntu-latest
  aicage image status claude ubuntu   Show why an image would be rebuilt
  aicage version-check claude         Resolve the agent version
  aicage config show                  Show current configuration`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), flags.verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/aicage/config.cue)")

	rootCmd.AddCommand(newImageCommand(app, flags))
	rootCmd.AddCommand(newVersionCheckCommand(app, flags))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// setupLogging installs a charmbracelet/log handler as the slog default.
func setupLogging(w io.Writer, verboseMode bool) {
	level := log.InfoLevel
	if verboseMode {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "aicage",
		Level:  level,
	})
	slog.SetDefault(slog.New(logger))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			verboseMode, _ := rootCmd.PersistentFlags().GetBool("verbose")
			renderError(w, err, verboseMode)
		}),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
