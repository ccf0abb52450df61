// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/container"
	"aicage-cli/internal/issue"
	"aicage-cli/internal/provision"
	"aicage-cli/internal/versioncheck"
)

// classifyError wraps a domain error in an ActionableError linked to its
// catalog entry. A top-level ActionableError passes through unchanged; one
// nested under a domain error is classified by the domain error.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*issue.ActionableError); ok { //nolint:errorlint // only the outermost error is already classified
		return err
	}

	ctx := issue.NewErrorContext().WithOperation(operation).Wrap(err)

	var (
		checkErr    *versioncheck.CheckFailedError
		missingErr  *versioncheck.MissingScriptError
		buildErr    *provision.BuildFailedError
		pullErr     *provision.PullFailedError
		recordErr   *buildrecord.RecordError
		notAvailErr *container.EngineNotAvailableError
	)
	switch {
	case errors.As(err, &missingErr):
		ctx.WithIssue(issue.DefinitionNotFoundId).
			WithResource(missingErr.Path).
			WithSuggestion("Pass the agent definition directory with --definition-dir")
	case errors.As(err, &checkErr):
		ctx.WithIssue(issue.VersionCheckFailedId).
			WithResource(checkErr.Agent).
			WithSuggestion("Run version.sh by hand from the agent definition directory")
	case errors.As(err, &buildErr):
		ctx.WithIssue(issue.BuildFailedId).
			WithResource(buildErr.LogPath).
			WithSuggestion("Inspect the build log for the failing step")
	case errors.As(err, &pullErr):
		ctx.WithIssue(issue.PullFailedId).
			WithResource(string(pullErr.ImageRef)).
			WithSuggestion("Check network access to the registry and retry")
	case errors.As(err, &recordErr):
		ctx.WithIssue(issue.StateFileUnreadableId).
			WithResource(recordErr.Path).
			WithSuggestion("Remove the state file to force a rebuild")
	case errors.As(err, &notAvailErr):
		ctx.WithIssue(issue.ContainerEngineNotFoundId).
			WithSuggestion("Install Docker or set docker.binary in the config")
	case errors.Is(err, fs.ErrPermission):
		ctx.WithIssue(issue.PermissionDeniedId).
			WithSuggestion("Check ownership of the aicage state and log directories")
	}

	return ctx.BuildError()
}

// renderError writes err for the user. ActionableErrors get their suggestions;
// in verbose mode the linked catalog entry is rendered as well.
func renderError(w io.Writer, err error, verboseMode bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
		return
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(verboseMode))
	if !verboseMode {
		return
	}
	if entry := ae.Issue(); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			slog.Warn("failed to render issue catalog entry", "issueID", entry.Id(), "error", renderErr)
			return
		}
		fmt.Fprint(w, rendered)
	}
}
