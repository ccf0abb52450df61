// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// EnvironmentHost runs the version script on the host.
	EnvironmentHost = "host"
	// EnvironmentBuilder runs the version script inside the builder image.
	EnvironmentBuilder = "builder"

	// InspectViaCLI answers image inspection through the docker CLI.
	InspectViaCLI InspectVia = "cli"
	// InspectViaAPI answers image inspection through the Docker daemon socket.
	InspectViaAPI InspectVia = "api"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// InspectVia selects the backend used for local image inspection.
	InspectVia string

	// InvalidConfigError is returned when a loaded Config breaks a constraint
	// the CUE schema cannot express. It wraps ErrInvalidConfig.
	InvalidConfigError struct {
		Fields []string
	}

	// RegistryConfig locates the image registry and its HTTP API.
	RegistryConfig struct {
		// Host is the registry host name. Remote HEAD lookups only apply to
		// images under this host.
		Host string `json:"host" mapstructure:"host"`
		// APIURL is the registry v2 API root.
		APIURL string `json:"api_url" mapstructure:"api_url"`
		// TokenURL is the anonymous pull-token endpoint.
		TokenURL string `json:"token_url" mapstructure:"token_url"`
		// ImageRepository holds the published final images (<agent>-<base>-latest).
		ImageRepository string `json:"image_repository" mapstructure:"image_repository"`
		// BaseRepository holds the base images, tagged by base alias.
		BaseRepository string        `json:"base_repository" mapstructure:"base_repository"`
		Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
		RetryMax       int           `json:"retry_max" mapstructure:"retry_max"`
	}

	// VersionCheckConfig controls agent version resolution.
	VersionCheckConfig struct {
		// Image is the builder image used when the host environment fails.
		Image string `json:"image" mapstructure:"image"`
		// Order lists the environments to try, first success wins.
		Order []string `json:"order" mapstructure:"order"`
	}

	// DockerConfig selects the container engine binary and inspection backend.
	DockerConfig struct {
		Binary     string     `json:"binary" mapstructure:"binary"`
		InspectVia InspectVia `json:"inspect_via" mapstructure:"inspect_via"`
	}

	// BuildConfig locates the local build context.
	BuildConfig struct {
		DockerfileDir string `json:"dockerfile_dir" mapstructure:"dockerfile_dir"`
		// Dockerfile is relative to DockerfileDir. Empty means "Dockerfile".
		Dockerfile string `json:"dockerfile,omitempty" mapstructure:"dockerfile"`
	}

	// PullConfig controls the retry policy of image pulls.
	PullConfig struct {
		Attempts int           `json:"attempts" mapstructure:"attempts"`
		Backoff  time.Duration `json:"backoff" mapstructure:"backoff"`
	}

	// MetricsConfig controls metrics export.
	MetricsConfig struct {
		// Textfile is written after every command when set.
		Textfile string `json:"textfile,omitempty" mapstructure:"textfile"`
	}

	// Config is the application configuration.
	Config struct {
		// StateDir holds build records and the version-check cache.
		StateDir string `json:"state_dir" mapstructure:"state_dir"`
		// LogDir holds build logs.
		LogDir string `json:"log_dir" mapstructure:"log_dir"`
		// LocalImageRepository is the repository of locally built images.
		LocalImageRepository string             `json:"local_image_repository" mapstructure:"local_image_repository"`
		Registry             RegistryConfig     `json:"registry" mapstructure:"registry"`
		VersionCheck         VersionCheckConfig `json:"version_check" mapstructure:"version_check"`
		Docker               DockerConfig       `json:"docker" mapstructure:"docker"`
		Build                BuildConfig        `json:"build" mapstructure:"build"`
		Pull                 PullConfig         `json:"pull" mapstructure:"pull"`
		Metrics              MetricsConfig      `json:"metrics" mapstructure:"metrics"`
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Fields, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration. Directory values keep their
// leading "~"; the loader expands them.
func DefaultConfig() *Config {
	return &Config{
		StateDir:             "~/.aicage/state",
		LogDir:               "~/.aicage/logs",
		LocalImageRepository: "aicage",
		Registry: RegistryConfig{
			Host:            "ghcr.io",
			APIURL:          "https://ghcr.io/v2",
			TokenURL:        "https://ghcr.io/token?service=ghcr.io&scope=repository",
			ImageRepository: "aicage/aicage",
			BaseRepository:  "aicage/aicage-image-base",
			Timeout:         10 * time.Second,
			RetryMax:        2,
		},
		VersionCheck: VersionCheckConfig{
			Image: "ghcr.io/aicage/aicage-image-util:agent-version",
			Order: []string{EnvironmentHost, EnvironmentBuilder},
		},
		Docker: DockerConfig{
			Binary:     "docker",
			InspectVia: InspectViaCLI,
		},
		Build: BuildConfig{
			DockerfileDir: "~/.aicage/build",
		},
		Pull: PullConfig{
			Attempts: 2,
			Backoff:  2 * time.Second,
		},
	}
}

// Validate checks constraints that span fields or that the schema leaves open.
func (c *Config) Validate() error {
	var fields []string

	if !isEnvironmentOrder(c.VersionCheck.Order) {
		fields = append(fields, fmt.Sprintf("version_check.order: %v is not an ordering of %q and %q",
			c.VersionCheck.Order, EnvironmentHost, EnvironmentBuilder))
	}
	switch c.Docker.InspectVia {
	case InspectViaCLI, InspectViaAPI:
	default:
		fields = append(fields, fmt.Sprintf("docker.inspect_via: unknown backend %q", c.Docker.InspectVia))
	}
	if c.Pull.Attempts < 1 {
		fields = append(fields, "pull.attempts: must be at least 1")
	}
	if c.Pull.Backoff < 0 {
		fields = append(fields, "pull.backoff: must not be negative")
	}
	if c.Registry.RetryMax < 0 {
		fields = append(fields, "registry.retry_max: must not be negative")
	}
	for name, value := range map[string]string{
		"state_dir":                 c.StateDir,
		"log_dir":                   c.LogDir,
		"local_image_repository":    c.LocalImageRepository,
		"registry.host":             c.Registry.Host,
		"registry.base_repository":  c.Registry.BaseRepository,
		"registry.image_repository": c.Registry.ImageRepository,
		"build.dockerfile_dir":      c.Build.DockerfileDir,
		"docker.binary":             c.Docker.Binary,
	} {
		if strings.TrimSpace(value) == "" {
			fields = append(fields, name+": must not be empty")
		}
	}

	if len(fields) > 0 {
		slices.Sort(fields)
		return &InvalidConfigError{Fields: fields}
	}
	return nil
}

// isEnvironmentOrder reports whether order names host and builder exactly once each.
func isEnvironmentOrder(order []string) bool {
	if len(order) != 2 {
		return false
	}
	return slices.Contains(order, EnvironmentHost) && slices.Contains(order, EnvironmentBuilder)
}
