// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"aicage-cli/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "aicage"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the aicage configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading. It returns the
// resolved config and the path of the file it was read from ("" for defaults).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	resolvedPath := ""

	// A path passed with --config is used exclusively and must exist.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'aicage config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			resolvedPath = cuePath
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'aicage config dump' to see a valid configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion("version_check.order must list \"host\" and \"builder\" exactly once each").
			Wrap(err).
			BuildError()
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("log_dir", defaults.LogDir)
	v.SetDefault("local_image_repository", defaults.LocalImageRepository)
	v.SetDefault("registry.host", defaults.Registry.Host)
	v.SetDefault("registry.api_url", defaults.Registry.APIURL)
	v.SetDefault("registry.token_url", defaults.Registry.TokenURL)
	v.SetDefault("registry.image_repository", defaults.Registry.ImageRepository)
	v.SetDefault("registry.base_repository", defaults.Registry.BaseRepository)
	v.SetDefault("registry.timeout", defaults.Registry.Timeout)
	v.SetDefault("registry.retry_max", defaults.Registry.RetryMax)
	v.SetDefault("version_check.image", defaults.VersionCheck.Image)
	v.SetDefault("version_check.order", defaults.VersionCheck.Order)
	v.SetDefault("docker.binary", defaults.Docker.Binary)
	v.SetDefault("docker.inspect_via", string(defaults.Docker.InspectVia))
	v.SetDefault("build.dockerfile_dir", defaults.Build.DockerfileDir)
	v.SetDefault("build.dockerfile", defaults.Build.Dockerfile)
	v.SetDefault("pull.attempts", defaults.Pull.Attempts)
	v.SetDefault("pull.backoff", defaults.Pull.Backoff)
	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// The file is decoded to a map rather than a struct so that Viper keeps the
// defaults for every field the file leaves out.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkFileSize(data, maxConfigFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// expandPaths resolves a leading "~" in every directory-valued field.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.StateDir, &c.LogDir, &c.Build.DockerfileDir, &c.Metrics.Textfile} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome replaces a leading "~" or "~/" in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file at path unless one already
// exists. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := Save(path, DefaultConfig()); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes cfg to path as CUE.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// aicage configuration file\n\n")

	fmt.Fprintf(&sb, "state_dir: %q\n", cfg.StateDir)
	fmt.Fprintf(&sb, "log_dir: %q\n", cfg.LogDir)
	fmt.Fprintf(&sb, "local_image_repository: %q\n", cfg.LocalImageRepository)

	sb.WriteString("\nregistry: {\n")
	fmt.Fprintf(&sb, "\thost: %q\n", cfg.Registry.Host)
	fmt.Fprintf(&sb, "\tapi_url: %q\n", cfg.Registry.APIURL)
	fmt.Fprintf(&sb, "\ttoken_url: %q\n", cfg.Registry.TokenURL)
	fmt.Fprintf(&sb, "\timage_repository: %q\n", cfg.Registry.ImageRepository)
	fmt.Fprintf(&sb, "\tbase_repository: %q\n", cfg.Registry.BaseRepository)
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Registry.Timeout.String())
	fmt.Fprintf(&sb, "\tretry_max: %d\n", cfg.Registry.RetryMax)
	sb.WriteString("}\n")

	sb.WriteString("\nversion_check: {\n")
	fmt.Fprintf(&sb, "\timage: %q\n", cfg.VersionCheck.Image)
	quoted := make([]string, len(cfg.VersionCheck.Order))
	for i, env := range cfg.VersionCheck.Order {
		quoted[i] = fmt.Sprintf("%q", env)
	}
	fmt.Fprintf(&sb, "\torder: [%s]\n", strings.Join(quoted, ", "))
	sb.WriteString("}\n")

	sb.WriteString("\ndocker: {\n")
	fmt.Fprintf(&sb, "\tbinary: %q\n", cfg.Docker.Binary)
	fmt.Fprintf(&sb, "\tinspect_via: %q\n", cfg.Docker.InspectVia)
	sb.WriteString("}\n")

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\tdockerfile_dir: %q\n", cfg.Build.DockerfileDir)
	if cfg.Build.Dockerfile != "" {
		fmt.Fprintf(&sb, "\tdockerfile: %q\n", cfg.Build.Dockerfile)
	}
	sb.WriteString("}\n")

	sb.WriteString("\npull: {\n")
	fmt.Fprintf(&sb, "\tattempts: %d\n", cfg.Pull.Attempts)
	fmt.Fprintf(&sb, "\tbackoff: %q\n", cfg.Pull.Backoff.String())
	sb.WriteString("}\n")

	if cfg.Metrics.Textfile != "" {
		sb.WriteString("\nmetrics: {\n")
		fmt.Fprintf(&sb, "\ttextfile: %q\n", cfg.Metrics.Textfile)
		sb.WriteString("}\n")
	}

	return sb.String()
}
