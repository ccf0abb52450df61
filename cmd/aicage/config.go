// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aicage-cli/internal/config"
)

// newConfigCommand creates the `aicage config` command tree.
func newConfigCommand(app *App, flags *globalFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage aicage configuration",
		Long: `Manage aicage configuration.

Configuration is stored in:
  - Linux: ~/.config/aicage/config.cue
  - macOS: ~/Library/Application Support/aicage/config.cue
  - Windows: %APPDATA%\aicage\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), cmd.OutOrStdout(), app, flags.configPath)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.FilePath(config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.FilePath(config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return err
			}
			created, err := config.CreateDefaultConfig(path)
			if err != nil {
				return classifyError("create default configuration", err)
			}
			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintln(out, WarningStyle.Render("Configuration already exists: ")+path)
				return nil
			}
			fmt.Fprintln(out, SuccessStyle.Render("Created configuration: ")+path)
			return nil
		},
	})

	return cfgCmd
}

// showConfig prints the effective configuration grouped by section.
func showConfig(ctx context.Context, w io.Writer, app *App, configPath string) error {
	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err != nil {
		return err
	}

	fmt.Fprintln(w, TitleStyle.Render("Paths"))
	fmt.Fprintln(w, field("state_dir", cfg.StateDir))
	fmt.Fprintln(w, field("log_dir", cfg.LogDir))
	fmt.Fprintln(w, field("dockerfile_dir", cfg.Build.DockerfileDir))

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Registry"))
	fmt.Fprintln(w, field("host", cfg.Registry.Host))
	fmt.Fprintln(w, field("api_url", cfg.Registry.APIURL))
	fmt.Fprintln(w, field("images", cfg.Registry.ImageRepository))
	fmt.Fprintln(w, field("bases", cfg.Registry.BaseRepository))
	fmt.Fprintln(w, field("timeout", cfg.Registry.Timeout.String()))

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Images"))
	fmt.Fprintln(w, field("local repository", cfg.LocalImageRepository))
	fmt.Fprintln(w, field("version order", strings.Join(cfg.VersionCheck.Order, ", ")))
	fmt.Fprintln(w, field("builder image", cfg.VersionCheck.Image))
	fmt.Fprintln(w, field("docker", cfg.Docker.Binary+" (inspect via "+string(cfg.Docker.InspectVia)+")"))
	fmt.Fprintln(w, field("pull attempts", strconv.Itoa(cfg.Pull.Attempts)+" (backoff "+cfg.Pull.Backoff.String()+")"))
	fmt.Fprintln(w, field("metrics", orNone(cfg.Metrics.Textfile)))
	return nil
}
