// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"aicage-cli/internal/buildrecord"
	"aicage-cli/internal/config"
	"aicage-cli/internal/container"
	"aicage-cli/internal/digest"
	"aicage-cli/internal/metrics"
	"aicage-cli/internal/provision"
	"aicage-cli/internal/registry"
	"aicage-cli/internal/versioncheck"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer: command handlers load configuration through Config and
	// obtain their collaborators from Services.
	App struct {
		Config   ConfigProvider
		Services ServiceFactory
		stdout   io.Writer
		stderr   io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config   ConfigProvider
		Services ServiceFactory
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// ServiceFactory builds the services for one invocation from a loaded config.
	// progress receives pull output.
	ServiceFactory func(cfg *config.Config, logger *slog.Logger, progress io.Writer) (*Services, error)

	// LocalImageService provisions and reports on locally built images.
	LocalImageService interface {
		provision.Provisioner
		Status(ctx context.Context, agent, base, currentVersion string) (*provision.Status, error)
	}

	// VersionCache reads the last successful version check of an agent.
	VersionCache interface {
		Load(agent string) *versioncheck.Record
	}

	// BaseDiscovery lists the base aliases the registry publishes for an agent.
	BaseDiscovery interface {
		DiscoverBaseAliases(ctx context.Context, repository, agent string) ([]string, error)
	}

	// LocalTagLister lists locally present tags of a repository.
	LocalTagLister interface {
		ListLocalTags(ctx context.Context, repository string) ([]string, error)
	}

	// Services holds the collaborators a command needs.
	Services struct {
		LocalImages  LocalImageService
		Pulls        provision.Reconciler
		Versions     provision.VersionResolver
		VersionCache VersionCache
		Bases        BaseDiscovery
		LocalTags    LocalTagLister
		Metrics      *metrics.Recorder
		// ImageRepository is the full name (host/path) of the published agent images.
		ImageRepository string
		// ImageRepositoryPath is ImageRepository without the registry host.
		ImageRepositoryPath string
		// MetricsTextfile is written by Flush when set.
		MetricsTextfile string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Services == nil {
		deps.Services = newServices
	}

	return &App{
		Config:   deps.Config,
		Services: deps.Services,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
	}
}

// load resolves the configuration and services for one command invocation.
func (a *App) load(ctx context.Context, configPath string) (*config.Config, *Services, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err != nil {
		return nil, nil, err
	}
	svc, err := a.Services(cfg, slog.Default(), a.stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

// Flush writes the metrics textfile when one is configured. A failed write only
// warns: metrics never fail a command.
func (s *Services) Flush() {
	if s == nil || s.MetricsTextfile == "" {
		return
	}
	if err := s.Metrics.WriteTextfile(s.MetricsTextfile); err != nil {
		slog.Warn("failed to write metrics textfile", "path", s.MetricsTextfile, "error", err)
	}
}

// newServices builds the production services from cfg.
func newServices(cfg *config.Config, logger *slog.Logger, progress io.Writer) (*Services, error) {
	cliEngine, err := container.NewEngine(cfg.Docker.Binary)
	if err != nil {
		return nil, err
	}

	var engine container.Engine = cliEngine
	if cfg.Docker.InspectVia == config.InspectViaAPI {
		inspector, err := container.NewAPIInspector()
		if err != nil {
			return nil, err
		}
		engine = container.WithInspector(cliEngine, inspector)
	}

	rec := metrics.NewRecorder()
	registryClient := registry.NewClient(registry.Config{
		APIURL:   cfg.Registry.APIURL,
		TokenURL: cfg.Registry.TokenURL,
		Timeout:  cfg.Registry.Timeout,
		RetryMax: cfg.Registry.RetryMax,
	}, registry.WithLogger(logger))
	digests := digest.NewResolver(engine, registryClient, logger)

	versionStore := versioncheck.NewStore(cfg.StateDir)
	envs, err := versioncheck.ByOrder(cfg.VersionCheck.Order,
		versioncheck.NewHostEnvironment(logger),
		versioncheck.NewBuilderEnvironment(engine, cfg.VersionCheck.Image),
	)
	if err != nil {
		return nil, err
	}
	versions := versioncheck.NewResolver(envs, versionStore,
		versioncheck.WithLogger(logger),
		versioncheck.WithMetrics(rec),
	)

	pcfg, err := provisionConfig(cfg)
	if err != nil {
		return nil, err
	}
	rt := provision.Runtime{Logger: logger, Metrics: rec, Output: progress}

	return &Services{
		LocalImages:         provision.NewLocalImageProvisioner(engine, versions, digests, buildrecord.NewStore(cfg.StateDir), pcfg, rt),
		Pulls:               provision.NewPullReconciler(engine, digests, pcfg, rt),
		Versions:            versions,
		VersionCache:        versionStore,
		Bases:               registryClient,
		LocalTags:           cliEngine,
		Metrics:             rec,
		ImageRepository:     registry.JoinRepository(cfg.Registry.Host, cfg.Registry.ImageRepository),
		ImageRepositoryPath: cfg.Registry.ImageRepository,
		MetricsTextfile:     cfg.Metrics.Textfile,
	}, nil
}

// provisionConfig maps the application config onto the provisioning config
// and validates the result.
func provisionConfig(cfg *config.Config) (*provision.Config, error) {
	pcfg := provision.DefaultConfig()
	pcfg.LocalImageRepository = cfg.LocalImageRepository
	pcfg.Apply(
		provision.WithRegistry(cfg.Registry.Host, cfg.Registry.BaseRepository),
		provision.WithBuildContext(cfg.Build.DockerfileDir, cfg.Build.Dockerfile),
		provision.WithLogDir(cfg.LogDir),
		provision.WithPullRetry(cfg.Pull.Attempts, cfg.Pull.Backoff),
	)
	if err := pcfg.Validate(); err != nil {
		return nil, fmt.Errorf("provisioning config: %w", err)
	}
	return pcfg, nil
}

// defaultDefinitionDir is where agent definitions live when --definition-dir
// is not given: <dockerfile_dir>/agents/<agent>.
func defaultDefinitionDir(cfg *config.Config, agent string) string {
	return filepath.Join(cfg.Build.DockerfileDir, "agents", agent)
}

// requireArg rejects blank positional arguments.
func requireArg(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	return nil
}
