// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCheckCommand creates the `aicage version-check` command.
func newVersionCheckCommand(app *App, flags *globalFlags) *cobra.Command {
	var definitionDir string

	cmd := &cobra.Command{
		Use:   "version-check <agent>",
		Short: "Resolve the current version of an agent",
		Long: `Resolve the current version of an agent by running its version.sh.

The script runs in each configured environment (version_check.order) until one
prints a version. The result is cached under the state directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, svc, err := app.load(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer svc.Flush()

			agent := args[0]
			if err := requireArg("agent", agent); err != nil {
				return err
			}
			dir := definitionDir
			if dir == "" {
				dir = defaultDefinitionDir(cfg, agent)
			}

			version, err := svc.Versions.Resolve(ctx, agent, dir)
			if err != nil {
				return classifyError("resolve agent version", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	cmd.Flags().StringVar(&definitionDir, "definition-dir", "", "directory holding the agent's version.sh (default <build.dockerfile_dir>/agents/<agent>)")
	return cmd
}
