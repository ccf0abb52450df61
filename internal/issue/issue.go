// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	VersionCheckFailedId Id = iota + 1
	DefinitionNotFoundId
	ContainerEngineNotFoundId
	BuildFailedId
	PullFailedId
	BaseImageUnavailableId
	StateFileUnreadableId
	ConfigLoadFailedId
	RegistryUnreachableId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	versionCheckFailedIssue = &Issue{
		id: VersionCheckFailedId,
		mdMsg: `
# Could not determine the agent version!

Both the host shell and the builder container failed to run the agent's ` + "`version.sh`" + `.
The image cannot be provisioned without a version fingerprint.

## Things you can try:
- Run the script by hand from the agent definition directory:
~~~
$ sh version.sh
~~~

- Check network access: most version scripts query a package registry
- Pull the builder image manually and retry:
~~~
$ docker pull ghcr.io/aicage/aicage-image-util:agent-version
~~~`,
	}

	definitionNotFoundIssue = &Issue{
		id: DefinitionNotFoundId,
		mdMsg: `
# Agent definition not found!

The agent definition directory does not contain a ` + "`version.sh`" + ` script.

## Things you can try:
- Pass the directory explicitly with ` + "`--definition-dir`" + `
- Check the agent name for typos`,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Docker is not available!

aicage drives the docker CLI to inspect, pull and build images.

## Things you can try:
- Install Docker and make sure ` + "`docker`" + ` is in your PATH
- Point ` + "`docker.binary`" + ` in your config at the binary
- Check the daemon is running:
~~~
$ docker info
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/"},
	}

	buildFailedIssue = &Issue{
		id: BuildFailedId,
		mdMsg: `
# Local image build failed!

The full build output was written to the build log shown above.

## Things you can try:
- Read the log from the bottom up to find the failing step
- Make sure the base image can be pulled
- Retry with ` + "`--force-rebuild`" + ` once the cause is fixed`,
	}

	pullFailedIssue = &Issue{
		id: PullFailedId,
		mdMsg: `
# Image pull failed and no local copy exists!

## Things you can try:
- Check your network connection and registry credentials:
~~~
$ docker login ghcr.io
~~~

- Verify the image reference exists in the registry`,
	}

	baseImageUnavailableIssue = &Issue{
		id: BaseImageUnavailableId,
		mdMsg: `
# Base image unavailable!

The base image could not be pulled and there is no local copy to fall back to.

## Things you can try:
- Check the base alias with ` + "`aicage image bases <agent>`" + `
- Pull the base image manually once you are online`,
	}

	stateFileUnreadableIssue = &Issue{
		id: StateFileUnreadableId,
		mdMsg: `
# State file could not be read!

A build record or version cache file exists but could not be parsed.
It is treated as missing, so the image will be rebuilt.

## Things you can try:
- Delete the file; it is recreated after the next successful build
- Check that the state directory is owned by your user`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the file for CUE syntax errors
- Print the effective location:
~~~
$ aicage config path
~~~

- Regenerate a default file:
~~~
$ aicage config init
~~~`,
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# Registry unreachable!

Remote lookups failed, so only locally available images were considered.

## Things you can try:
- Check ` + "`registry.api_url`" + ` and ` + "`registry.token_url`" + ` in your config
- Retry once you are online`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Common causes:
- The state or log directory is not writable
- The docker socket requires elevated permissions

## Things you can try:
- Check directory ownership under ` + "`~/.aicage`" + `
- Add your user to the docker group:
~~~
$ sudo usermod -aG docker $USER
~~~`,
	}

	issues = map[Id]*Issue{
		versionCheckFailedIssue.Id():      versionCheckFailedIssue,
		definitionNotFoundIssue.Id():      definitionNotFoundIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		buildFailedIssue.Id():             buildFailedIssue,
		pullFailedIssue.Id():              pullFailedIssue,
		baseImageUnavailableIssue.Id():    baseImageUnavailableIssue,
		stateFileUnreadableIssue.Id():     stateFileUnreadableIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		registryUnreachableIssue.Id():     registryUnreachableIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
