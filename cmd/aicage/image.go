// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"aicage-cli/internal/provision"
	"aicage-cli/internal/registry"
)

// newImageCommand creates the `aicage image` command tree.
func newImageCommand(app *App, flags *globalFlags) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Provision and inspect agent images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	imageCmd.AddCommand(newImageEnsureCommand(app, flags))
	imageCmd.AddCommand(newImagePullCommand(app, flags))
	imageCmd.AddCommand(newImageStatusCommand(app, flags))
	imageCmd.AddCommand(newImageBasesCommand(app, flags))
	return imageCmd
}

func newImageEnsureCommand(app *App, flags *globalFlags) *cobra.Command {
	var (
		definitionDir string
		forceRebuild  bool
	)

	cmd := &cobra.Command{
		Use:   "ensure <agent> <base>",
		Short: "Build the local image for an agent and base unless it is fresh",
		Long: `Build the local image for an agent and base unless it is fresh.

The image is rebuilt when it is missing, when no build record exists, when the
agent version changed, or when the base image digest moved or is unknown.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, svc, err := app.load(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer svc.Flush()

			agent, base := args[0], args[1]
			dir := definitionDir
			if dir == "" {
				dir = defaultDefinitionDir(cfg, agent)
			}

			res, err := svc.LocalImages.EnsureLocalImage(ctx, provision.Request{
				Agent:         agent,
				Base:          base,
				DefinitionDir: dir,
				ForceRebuild:  forceRebuild,
			})
			if err != nil {
				return classifyError("ensure local image", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, RefStyle.Render(string(res.ImageRef)))
			fmt.Fprintf(out, "rebuilt=%s\n", strconv.FormatBool(res.Rebuilt))
			slog.Debug("freshness decision", "reason", res.Decision.Reason, "version", res.AgentVersion, "base_digest", res.BaseDigest)
			return nil
		},
	}

	cmd.Flags().StringVar(&definitionDir, "definition-dir", "", "directory holding the agent's version.sh (default <build.dockerfile_dir>/agents/<agent>)")
	cmd.Flags().BoolVar(&forceRebuild, "force-rebuild", false, "build even when the image is fresh")
	return cmd
}

func newImagePullCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <image-ref>",
		Short: "Pull a registry image unless the local copy is current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, svc, err := app.load(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer svc.Flush()

			if err := svc.Pulls.EnsureFresh(ctx, args[0]); err != nil {
				return classifyError("pull image", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), RefStyle.Render(args[0]))
			return nil
		},
	}
}

func newImageStatusCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent> <base>",
		Short: "Show the build record and freshness of a local image",
		Long: `Show the build record and freshness of a local image.

Only local state is consulted: the version is the last cached version check,
and the base digest is the one of the local base image. Nothing is built.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, svc, err := app.load(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer svc.Flush()

			agent, base := args[0], args[1]
			currentVersion := ""
			checkedAt := ""
			if cached := svc.VersionCache.Load(agent); cached != nil {
				currentVersion = cached.Version
				checkedAt = cached.CheckedAt
			}

			status, err := svc.LocalImages.Status(ctx, agent, base, currentVersion)
			if err != nil {
				return classifyError("read image status", err)
			}
			renderStatus(cmd.OutOrStdout(), status, currentVersion, checkedAt)
			return nil
		},
	}
}

func renderStatus(w io.Writer, status *provision.Status, cachedVersion, checkedAt string) {
	fmt.Fprintln(w, TitleStyle.Render(string(status.ImageRef)))
	fmt.Fprintln(w, field("image present", strconv.FormatBool(status.ImageExists)))
	fmt.Fprintln(w, field("base digest", orNone(string(status.BaseDigest))))
	if cachedVersion != "" {
		fmt.Fprintln(w, field("agent version", cachedVersion+SubtitleStyle.Render(" (checked "+checkedAt+")")))
	} else {
		fmt.Fprintln(w, field("agent version", orNone("")))
	}

	if rec := status.Record; rec != nil {
		fmt.Fprintln(w, field("built version", rec.AgentVersion))
		fmt.Fprintln(w, field("built on digest", orNone(string(rec.BaseDigest))))
		fmt.Fprintln(w, field("built at", rec.BuiltAt.UTC().Format("2006-01-02T15:04:05Z07:00")))
	} else {
		fmt.Fprintln(w, field("build record", orNone("")))
	}

	verdict := SuccessStyle.Render(string(status.Decision.Reason))
	if status.Decision.Build {
		verdict = WarningStyle.Render("rebuild: " + string(status.Decision.Reason))
	}
	fmt.Fprintln(w, field("decision", verdict))
}

func orNone(s string) string {
	if s == "" {
		return SubtitleStyle.Render("none")
	}
	return s
}

func newImageBasesCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bases <agent>",
		Short: "List the base aliases available for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, svc, err := app.load(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer svc.Flush()

			if err := requireArg("agent", args[0]); err != nil {
				return err
			}
			for _, alias := range discoverBases(ctx, svc, args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), alias)
			}
			return nil
		},
	}
}

// discoverBases merges the base aliases published on the registry with the
// ones present locally. A registry failure degrades to the local aliases.
func discoverBases(ctx context.Context, svc *Services, agent string) []string {
	var aliases []string

	remote, err := svc.Bases.DiscoverBaseAliases(ctx, svc.ImageRepositoryPath, agent)
	if err != nil {
		slog.Warn("base alias discovery failed; showing local images only", "repository", svc.ImageRepository, "error", err)
	} else {
		aliases = append(aliases, remote...)
	}

	refs, err := svc.LocalTags.ListLocalTags(ctx, svc.ImageRepository)
	if err != nil {
		slog.Debug("listing local images failed", "repository", svc.ImageRepository, "error", err)
	} else {
		aliases = append(aliases, registry.BaseAliasesFromTags(refs, agent)...)
	}

	slices.Sort(aliases)
	return slices.Compact(aliases)
}

